package main

import (
	"fmt"
	"log"

	"git.home.luguber.info/inful/proxyrunner/internal/config"
	"git.home.luguber.info/inful/proxyrunner/internal/runenv"
)

func main() {
	// Default plan: backtraces on, every subsystem at info
	plan, err := runenv.New(config.EnvConfig{})
	if err != nil {
		log.Fatalf("runenv.New() error: %v", err)
	}
	fmt.Println("Default plan:")
	for _, kv := range plan.Environ(nil) {
		fmt.Printf("  %s\n", kv)
	}

	// Tuned plan: full backtraces, packet framework at trace
	plan, err = runenv.New(config.EnvConfig{
		Backtrace: "full",
		Log:       map[string]string{"e2d2": "trace"},
	})
	if err != nil {
		log.Fatalf("runenv.New() error: %v", err)
	}
	fmt.Println("Tuned plan:")
	for _, kv := range plan.Environ(nil) {
		fmt.Printf("  %s\n", kv)
	}

	// Stale managed variables in the base environment are replaced, not duplicated
	base := []string{"RUST_LOG=stale", "RUST_BACKTRACE=0", "PATH=/usr/bin"}
	fmt.Println("Merged over a stale base:")
	for _, kv := range plan.Environ(base) {
		fmt.Printf("  %s\n", kv)
	}

	// An invalid level is rejected, not guessed at
	_, err = runenv.New(config.EnvConfig{Log: map[string]string{"e2d2": "loud"}})
	fmt.Printf("Invalid level rejected: %v\n", err)
}
