package errors

var (
	ErrUnknown               = New(ERR_UNKNOWN, "unknown error")
	ErrInvalidArgument       = New(ERR_INVALID_ARGUMENT, "invalid argument")
	ErrNotFound              = New(ERR_NOT_FOUND, "not found")
	ErrProcessing            = New(ERR_PROCESSING, "error processing")
	ErrConfiguration         = New(ERR_CONFIGURATION, "configuration error")
	ErrContextCanceled       = New(ERR_CONTEXT_CANCELED, "context canceled")
	ErrError                 = New(ERR_ERROR, "generic error")
	ErrReadTimeout           = New(ERR_READ_TIMEOUT, "read timed out waiting for writer")
	ErrBlockNotFound         = New(ERR_BLOCK_NOT_FOUND, "block not found")
	ErrBlockInvalid          = New(ERR_BLOCK_INVALID, "block invalid")
	ErrBlockExists           = New(ERR_BLOCK_EXISTS, "block exists")
	ErrBlockOrphan           = New(ERR_BLOCK_ORPHAN, "block is an orphan")
	ErrBlockSigopLimit       = New(ERR_BLOCK_SIGOP_LIMIT, "block exceeds signature operation limit")
	ErrBlockCheckpoint       = New(ERR_BLOCK_CHECKPOINT, "block hash does not match checkpoint")
	ErrBlockMerkleMismatch   = New(ERR_BLOCK_MERKLE_MISMATCH, "merkle root mismatch")
	ErrBlockPOW              = New(ERR_BLOCK_POW, "proof of work invalid")
	ErrBlockTimestamp        = New(ERR_BLOCK_TIMESTAMP, "block timestamp invalid")
	ErrBlockVersion          = New(ERR_BLOCK_VERSION, "block version obsolete")
	ErrBlockBits             = New(ERR_BLOCK_BITS, "incorrect proof of work bits")
	ErrCoinbaseMissingHeight = New(ERR_COINBASE_MISSING_HEIGHT, "the coinbase signature script doesn't have the block height")
	ErrTxNotFound            = New(ERR_TX_NOT_FOUND, "tx not found")
	ErrTxInvalid             = New(ERR_TX_INVALID, "tx invalid")
	ErrTxInvalidDoubleSpend  = New(ERR_TX_INVALID_DOUBLE_SPEND, "tx invalid double spend")
	ErrMissingPreviousOutput = New(ERR_MISSING_PREVIOUS_OUTPUT, "missing previous output")
	ErrCoinbaseMaturity      = New(ERR_COINBASE_MATURITY, "coinbase spent before maturity")
	ErrScriptVerify          = New(ERR_SCRIPT_VERIFY, "script verification failed")
	ErrLockTime              = New(ERR_LOCKTIME, "bad lock time")
	ErrUnspentOutput         = New(ERR_UNSPENT_OUTPUT, "output is unspent")
	ErrServiceStopped        = New(ERR_SERVICE_STOPPED, "service stopped")
	ErrServiceUnavailable    = New(ERR_SERVICE_UNAVAILABLE, "service unavailable")
	ErrStorageError          = New(ERR_STORAGE_ERROR, "storage error")
	ErrStorageLocked         = New(ERR_STORAGE_LOCKED, "storage locked by another process")
)

// errors initialization functions

func NewInvalidArgumentError(message string, params ...interface{}) error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}
func NewNotFoundError(message string, params ...interface{}) error {
	return New(ERR_NOT_FOUND, message, params...)
}
func NewProcessingError(message string, params ...interface{}) error {
	return New(ERR_PROCESSING, message, params...)
}
func NewConfigurationError(message string, params ...interface{}) error {
	return New(ERR_CONFIGURATION, message, params...)
}
func NewContextCanceledError(message string, params ...interface{}) error {
	return New(ERR_CONTEXT_CANCELED, message, params...)
}
func NewReadTimeoutError(message string, params ...interface{}) error {
	return New(ERR_READ_TIMEOUT, message, params...)
}
func NewBlockNotFoundError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_NOT_FOUND, message, params...)
}
func NewBlockInvalidError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_INVALID, message, params...)
}

// NewBlockExistsError is returned as *Error so callers can attach BlockInfo data.
func NewBlockExistsError(message string, params ...interface{}) *Error {
	return New(ERR_BLOCK_EXISTS, message, params...)
}
func NewBlockOrphanError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_ORPHAN, message, params...)
}
func NewBlockSigopLimitError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_SIGOP_LIMIT, message, params...)
}
func NewBlockCheckpointError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_CHECKPOINT, message, params...)
}
func NewBlockMerkleMismatchError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_MERKLE_MISMATCH, message, params...)
}
func NewBlockPOWError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_POW, message, params...)
}
func NewBlockTimestampError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_TIMESTAMP, message, params...)
}
func NewBlockVersionError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_VERSION, message, params...)
}
func NewBlockBitsError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_BITS, message, params...)
}
func NewCoinbaseMissingHeightError(message string, params ...interface{}) error {
	return New(ERR_COINBASE_MISSING_HEIGHT, message, params...)
}
func NewTxNotFoundError(message string, params ...interface{}) error {
	return New(ERR_TX_NOT_FOUND, message, params...)
}
func NewTxInvalidError(message string, params ...interface{}) error {
	return New(ERR_TX_INVALID, message, params...)
}
func NewTxInvalidDoubleSpendError(message string, params ...interface{}) error {
	return New(ERR_TX_INVALID_DOUBLE_SPEND, message, params...)
}
func NewMissingPreviousOutputError(message string, params ...interface{}) error {
	return New(ERR_MISSING_PREVIOUS_OUTPUT, message, params...)
}
func NewCoinbaseMaturityError(message string, params ...interface{}) error {
	return New(ERR_COINBASE_MATURITY, message, params...)
}
func NewScriptVerifyError(message string, params ...interface{}) error {
	return New(ERR_SCRIPT_VERIFY, message, params...)
}
func NewLockTimeError(message string, params ...interface{}) error {
	return New(ERR_LOCKTIME, message, params...)
}
func NewUnspentOutputError(message string, params ...interface{}) error {
	return New(ERR_UNSPENT_OUTPUT, message, params...)
}
func NewServiceStoppedError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_STOPPED, message, params...)
}
func NewServiceUnavailableError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_UNAVAILABLE, message, params...)
}
func NewStorageError(message string, params ...interface{}) error {
	return New(ERR_STORAGE_ERROR, message, params...)
}
func NewStorageLockedError(message string, params ...interface{}) error {
	return New(ERR_STORAGE_LOCKED, message, params...)
}
