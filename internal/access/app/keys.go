package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/handihub/trustgate/pkg/cryptox"
	"github.com/handihub/trustgate/pkg/jwtx"
)

// initSessionKey loads the Ed25519 session signing key from the configured
// file, creating one on first run. Without a configured file an ephemeral key
// is generated, which invalidates all sessions on restart.
func initSessionKey(cfg Config, logger *slog.Logger) (*jwtx.EdDSASigner, error) {
	var pemKey []byte

	switch {
	case cfg.SessionKeyFile == "":
		logger.Warn("no session key file configured, using an ephemeral key; " +
			"sessions will not survive a restart")
		key, err := cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, err
		}
		pemKey = key

	default:
		data, err := os.ReadFile(cfg.SessionKeyFile)
		switch {
		case err == nil:
			pemKey = data
		case os.IsNotExist(err):
			key, genErr := cryptox.GenerateEd25519Key()
			if genErr != nil {
				return nil, genErr
			}
			if writeErr := os.WriteFile(cfg.SessionKeyFile, key, 0600); writeErr != nil {
				return nil, fmt.Errorf("failed to write session key file: %w", writeErr)
			}
			logger.Info("generated new session signing key", "path", cfg.SessionKeyFile)
			pemKey = key
		default:
			return nil, fmt.Errorf("failed to read session key file: %w", err)
		}
	}

	privateKey, err := cryptox.ParseEd25519Key(pemKey)
	if err != nil {
		return nil, err
	}
	return jwtx.NewSignerEdDSA(privateKey)
}
