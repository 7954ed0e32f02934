package errors

// ERR enumerates the error codes carried by *Error.
type ERR int32

const (
	ERR_UNKNOWN          ERR = 0
	ERR_INVALID_ARGUMENT ERR = 1
	ERR_NOT_FOUND        ERR = 2
	ERR_PROCESSING       ERR = 3
	ERR_CONFIGURATION    ERR = 4
	ERR_CONTEXT_CANCELED ERR = 5
	ERR_ERROR            ERR = 6
	ERR_READ_TIMEOUT     ERR = 7

	// block errors
	ERR_BLOCK_NOT_FOUND         ERR = 10
	ERR_BLOCK_INVALID           ERR = 11
	ERR_BLOCK_EXISTS            ERR = 12
	ERR_BLOCK_ORPHAN            ERR = 13
	ERR_BLOCK_SIGOP_LIMIT       ERR = 14
	ERR_BLOCK_CHECKPOINT        ERR = 15
	ERR_BLOCK_MERKLE_MISMATCH   ERR = 16
	ERR_BLOCK_POW               ERR = 17
	ERR_BLOCK_TIMESTAMP         ERR = 18
	ERR_BLOCK_VERSION           ERR = 19
	ERR_BLOCK_BITS              ERR = 20
	ERR_COINBASE_MISSING_HEIGHT ERR = 21

	// transaction errors
	ERR_TX_NOT_FOUND            ERR = 30
	ERR_TX_INVALID              ERR = 31
	ERR_TX_INVALID_DOUBLE_SPEND ERR = 32
	ERR_MISSING_PREVIOUS_OUTPUT ERR = 33
	ERR_COINBASE_MATURITY       ERR = 34
	ERR_SCRIPT_VERIFY           ERR = 35
	ERR_LOCKTIME                ERR = 36
	ERR_UNSPENT_OUTPUT          ERR = 37

	// service errors
	ERR_SERVICE_STOPPED     ERR = 50
	ERR_SERVICE_UNAVAILABLE ERR = 51

	// storage errors
	ERR_STORAGE_ERROR  ERR = 60
	ERR_STORAGE_LOCKED ERR = 61
)

var ERR_name = map[int32]string{
	0:  "UNKNOWN",
	1:  "INVALID_ARGUMENT",
	2:  "NOT_FOUND",
	3:  "PROCESSING",
	4:  "CONFIGURATION",
	5:  "CONTEXT_CANCELED",
	6:  "ERROR",
	7:  "READ_TIMEOUT",
	10: "BLOCK_NOT_FOUND",
	11: "BLOCK_INVALID",
	12: "BLOCK_EXISTS",
	13: "BLOCK_ORPHAN",
	14: "BLOCK_SIGOP_LIMIT",
	15: "BLOCK_CHECKPOINT",
	16: "BLOCK_MERKLE_MISMATCH",
	17: "BLOCK_POW",
	18: "BLOCK_TIMESTAMP",
	19: "BLOCK_VERSION",
	20: "BLOCK_BITS",
	21: "COINBASE_MISSING_HEIGHT",
	30: "TX_NOT_FOUND",
	31: "TX_INVALID",
	32: "TX_INVALID_DOUBLE_SPEND",
	33: "MISSING_PREVIOUS_OUTPUT",
	34: "COINBASE_MATURITY",
	35: "SCRIPT_VERIFY",
	36: "LOCKTIME",
	37: "UNSPENT_OUTPUT",
	50: "SERVICE_STOPPED",
	51: "SERVICE_UNAVAILABLE",
	60: "STORAGE_ERROR",
	61: "STORAGE_LOCKED",
}

func (x ERR) String() string {
	if name, ok := ERR_name[int32(x)]; ok {
		return name
	}

	return "UNKNOWN"
}
