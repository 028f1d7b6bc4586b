package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// backupCodeAlphabet excludes easily-confused characters (0/O, 1/I/L). All
// uppercase so user input can be normalized before lookup.
const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// BackupCodeLength is the number of alphabet characters per recovery code.
// 10 chars over a 31-char alphabet is ~49.5 bits of entropy, comfortably
// beyond brute-force range for single-use codes behind a rate limiter.
const BackupCodeLength = 10

// GenerateBackupCode returns a single recovery code in XXXXX-XXXXX form.
func GenerateBackupCode() (string, error) {
	chars := make([]byte, BackupCodeLength)
	for i := range chars {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(backupCodeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate backup code: %w", err)
		}
		chars[i] = backupCodeAlphabet[n.Int64()]
	}

	half := BackupCodeLength / 2
	return string(chars[:half]) + "-" + string(chars[half:]), nil
}

// NormalizeBackupCode uppercases a submitted code and strips separators and
// whitespace so "ab2kq-x9mtr", "AB2KQ X9MTR" and "AB2KQX9MTR" all match the
// same stored fingerprint.
func NormalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}
