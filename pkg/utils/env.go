package utils

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	gonanoid "github.com/matoous/go-nanoid"
	"github.com/spf13/cast"
)

// LoadEnv loads `.env.<env>` followed by `.env` from the working directory.
// Variables already present in the process environment are never overridden.
func LoadEnv(env string) error {
	if env == "" {
		env = "development"
	}
	var loaded bool
	for _, name := range []string{".env." + env, ".env"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		loaded = true
	}
	if !loaded {
		return errors.New("no env file found, using process environment")
	}
	return nil
}

// GetEnv 获取环境变量（去除首尾空白）
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetIntEnv returns 0 when the variable is unset or not a number.
func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

// GetBoolEnv accepts 1/0, true/false, t/f in any case.
func GetBoolEnv(key string) bool {
	return cast.ToBool(strings.ToLower(GetEnv(key)))
}

// GetFloatEnv returns 0 when the variable is unset or not a number.
func GetFloatEnv(key string) float64 {
	return cast.ToFloat64(GetEnv(key))
}

const randAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandText returns n random alphanumerics.
func RandText(n int) string {
	s, err := gonanoid.Generate(randAlphabet, n)
	if err == nil {
		return s
	}
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	for i := range buf {
		buf[i] = randAlphabet[int(buf[i])%len(randAlphabet)]
	}
	return string(buf)
}
