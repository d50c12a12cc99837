package errors

import stderrors "errors"

var (
	ErrUnauthorized         = stderrors.New("bridge: caller is not the authority")
	ErrAlreadyProcessed     = stderrors.New("bridge: transaction already processed")
	ErrInvalidAmount        = stderrors.New("bridge: invalid amount")
	ErrInsufficientBalance  = stderrors.New("bridge: insufficient balance")
	ErrDependentCallFailed  = stderrors.New("bridge: dependent call failed")
	ErrMalformedInstruction = stderrors.New("bridge: malformed instruction")
	ErrAlreadyBound         = stderrors.New("bridge: underlying already bound")
	ErrNotYetBound          = stderrors.New("bridge: underlying not bound")
)

var (
	ErrGasExhausted        = stderrors.New("bridge: prepaid gas exhausted")
	ErrSettlementInFlight  = stderrors.New("bridge: settlement already in flight")
	ErrNotRegistered       = stderrors.New("bridge: account not registered")
	ErrUnknownToken        = stderrors.New("bridge: unknown token contract")
	ErrAlreadyInitialized  = stderrors.New("bridge: contract already initialized")
	ErrNotInitialized      = stderrors.New("bridge: contract not initialized")
	ErrBondRequired        = stderrors.New("bridge: execution bond required")
	ErrUnknownAccount      = stderrors.New("bridge: unknown account")
	ErrInsufficientDeposit = stderrors.New("bridge: attached deposit required")
	ErrDeliveredWrapped    = stderrors.New("bridge: delivered as wrapped token")
)
