package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"dbdeck/internal/config"
	"dbdeck/internal/dbclient"
	mcpserver "dbdeck/internal/mcp"
	"dbdeck/internal/service"
	"dbdeck/internal/storage"
	"dbdeck/internal/vault"
)

// Serve runs the app as an MCP server on stdin/stdout until interrupted.
// It wires storage, the credential vault, the connection registry, and the
// schema refresher, then blocks serving tools.
func Serve(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	v, err := newVault(cfg)
	if err != nil {
		return err
	}

	db, err := storage.New(cfg.MetaDBPath())
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer db.Close()

	registry := dbclient.NewRegistry(v, dbclient.DefaultAdapters())
	executor := dbclient.NewExecutor(registry)
	connStore := storage.NewConnectionStore(db)

	databaseSvc := service.NewDatabaseService(
		connStore,
		storage.NewQueryResultStore(db),
		storage.NewSavedQueryStore(db),
		v,
		registry,
		executor,
	)
	defer databaseSvc.Close()

	refresher := service.NewSchemaRefresher(connStore, registry, executor)
	if err := refresher.Start(ctx, cfg.SchemaRefreshCron); err != nil {
		return fmt.Errorf("start schema refresher: %w", err)
	}
	defer refresher.Stop()
	databaseSvc.SetRefresher(refresher)

	mcpSrv := mcpserver.New(databaseSvc)

	errCh := make(chan error, 1)
	go func() {
		errCh <- mcpSrv.ServeStdio()
	}()

	select {
	case <-ctx.Done():
		log.Println("[APP] Shutting down...")
		return nil
	case err := <-errCh:
		return err
	}
}

// newVault builds the credential vault. With a passphrase configured the key
// is derived via PBKDF2 against a salt persisted next to the data; otherwise
// a raw key file is used, generated on first run.
func newVault(cfg *config.Config) (*vault.Vault, error) {
	if cfg.VaultPassphrase != "" {
		salt, err := loadOrCreateVaultSalt(filepath.Join(cfg.DataDir, "vault.salt"))
		if err != nil {
			return nil, err
		}
		return vault.NewFromSecret([]byte(cfg.VaultPassphrase), salt)
	}
	key, err := loadOrCreateVaultKey(cfg.VaultKeyFile)
	if err != nil {
		return nil, err
	}
	return vault.New(key)
}

// loadOrCreateVaultSalt reads the KDF salt, generating one on first run. The
// salt is not secret but must stay stable or stored ciphertext becomes
// unreadable.
func loadOrCreateVaultSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) < 16 {
			return nil, fmt.Errorf("vault salt %s: expected at least 16 bytes, got %d", path, len(salt))
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read vault salt: %w", err)
	}

	salt = make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate vault salt: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create salt dir: %w", err)
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("write vault salt: %w", err)
	}
	log.Printf("[APP] Generated new vault salt at %s", path)
	return salt, nil
}

// loadOrCreateVaultKey reads the 32-byte vault key, generating one on first
// run. The key file is created with owner-only permissions.
func loadOrCreateVaultKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != 32 {
			return nil, fmt.Errorf("vault key %s: expected 32 bytes, got %d", path, len(key))
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read vault key: %w", err)
	}

	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate vault key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write vault key: %w", err)
	}
	log.Printf("[APP] Generated new vault key at %s", path)
	return key, nil
}
