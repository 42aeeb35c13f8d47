package config

import (
	"os"
	"strconv"
)

type LedgerConfig struct {
	InitialBalance int64
	Currency       string
	BalancePrefix  string
	HistoryPrefix  string
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		InitialBalance: getEnvAsInt64("LEDGER_INITIAL_BALANCE", 15000),
		Currency:       getEnv("LEDGER_CURRENCY", "XOF"),
		BalancePrefix:  getEnv("LEDGER_BALANCE_PREFIX", "kalpe:balance:"),
		HistoryPrefix:  getEnv("LEDGER_HISTORY_PREFIX", "kalpe:transactions:"),
	}
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}
