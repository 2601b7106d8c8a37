package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fluxgate/internal/claim"
	"fluxgate/internal/config"
	"fluxgate/internal/ledger"
	"fluxgate/internal/lock"
	"fluxgate/internal/notify"
	"fluxgate/internal/realtime"
	"fluxgate/internal/receipts"
	"fluxgate/internal/server"
	"fluxgate/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	notices := notify.NewCenter()
	for i, problem := range cfg.Problems() {
		notices.Standing(fmt.Sprintf("config-%d", i), notify.LevelError, "Configuration error: "+problem)
	}

	if cfg.Wallet.PrivateKey == "" {
		log.Fatalf("FLUXGATE_WALLET_PRIVATE_KEY is required")
	}
	provider, err := wallet.NewLocalProvider(context.Background(), wallet.LocalProviderConfig{
		PrivateKeyHex: cfg.Wallet.PrivateKey,
		ChainID:       cfg.Wallet.ChainID,
		RPCURL:        cfg.Wallet.RPCURL,
	})
	if err != nil {
		log.Fatalf("wallet error: %v", err)
	}
	session := provider.Session()
	sessions := wallet.StaticAccessor{Session: session}
	walletAddress := session.Address.Hex()

	store, err := receipts.NewFileStore(cfg.Service.ReceiptStorePath)
	if err != nil {
		log.Fatalf("receipt store error: %v", err)
	}

	var ledgerClient ledger.Client = ledger.NewFakeLedger()
	if cfg.File.Ledger.BaseURL != "" {
		ledgerClient = ledger.NewHTTPClient(cfg.File.Ledger.BaseURL, cfg.File.Ledger.APIKey, cfg.Service.UserAgent)
	} else {
		log.Printf("no ledger baseUrl configured, using in-memory fake")
	}

	lockCoord := lock.NewCoordinator(lock.Config{
		RecipientAddress: cfg.File.LockRecipientAddress,
		AmountEth:        cfg.File.LockAmountEth,
		UserAgent:        cfg.Service.UserAgent,
	}, walletAddress, sessions, ledgerClient, notices)

	claimCoord := claim.NewCoordinator(claim.Config{
		ClaimAmount:          cfg.File.FaucetClaimAmount,
		CooldownSeconds:      cfg.File.FaucetCooldownSeconds,
		WhitelistBonusAmount: cfg.File.WhitelistBonusAmount,
		UserAgent:            cfg.Service.UserAgent,
	}, walletAddress, sessions, ledgerClient, lockCoord, store, notices)

	sched := lock.NewScheduler(lockCoord, cfg.PollInterval())

	var chain server.HealthChecker
	if cfg.Wallet.RPCURL != "" {
		chain = provider
	}
	apiServer := server.NewServer(cfg, lockCoord, claimCoord, sched, ledgerClient, chain, notices)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sched.Run(ctx)

	if cfg.File.RealtimeDSN != "" {
		listener := realtime.NewListener(cfg.File.RealtimeDSN, walletAddress, apiServer.NotifyRealtime)
		go listener.Run(ctx)
	}

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = apiServer.Shutdown(shutdownCtx)
}
