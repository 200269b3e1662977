package config

// DefaultVars are the variables the default values reference. Override them
// in a config file or with NSBRIDGE_-prefixed environment variables.
const DefaultVars = `
PathRWData = "/tmp/nullspace-bridge"
LedgerURL = "http://localhost:9650"
EVMURL = "http://localhost:8545"
`

// DefaultValues is the default configuration
const DefaultValues = `
[Log]
Environment = "development" # "production" or "development"
Level = "info"
Outputs = ["stderr"]

[Relayer]
LedgerURL = "{{LedgerURL}}"
EVMURL = "{{EVMURL}}"
LockboxAddress = "0x0000000000000000000000000000000000000000"
EVMChainID = 1337
Confirmations = 3
TokenDecimals = 18
CursorPath = "{{PathRWData}}/relayer_cursor.json"
AuditDBPath = "{{PathRWData}}/relayer_audit.sqlite"
InitialBlock = 0
InitialWithdrawalID = 0
BlockChunkSize = 2000
MaxWithdrawalsPerIteration = 1000
PollPeriod = "5s"
WaitReceiptPeriod = "5s"
RetryAfterErrorPeriod = "1s"
MaxRetryAttemptsAfterError = 0
AdminPrivateKeyPath = "{{PathRWData}}/admin.key"
AdminPrivateKey = ""
EVMPrivateKeyPath = "{{PathRWData}}/evm.key"

[RPC]
Host = "0.0.0.0"
Port = 5576
ReadTimeout = "2s"
WriteTimeout = "2s"
MaxRequestsPerIPAndSecond = 10
`
