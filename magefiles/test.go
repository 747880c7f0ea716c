//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Test groups test targets.
type Test mg.Namespace

// All runs all tests.
func (Test) All() error {
	return sh.RunV(binGo, "test", "./...")
}

// Race runs all tests with the race detector.
func (Test) Race() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Cover writes a coverage profile to bin/coverage.out and prints the
// per-function summary.
func (Test) Cover() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	profile := filepath.Join(binaryDir, "coverage.out")
	if err := sh.RunV(binGo, "test", "-coverprofile", profile, "./..."); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func", profile)
}

// Smoke builds the binary and runs it against testdata/shop for each
// backend: init, seed, move an order, delete a customer.
func (Test) Smoke() error {
	mg.Deps(Build)
	bin, err := filepath.Abs(filepath.Join(binaryDir, binaryName))
	if err != nil {
		return err
	}
	for _, backend := range []string{"sqlite", "badger"} {
		if err := smoke(bin, backend); err != nil {
			return fmt.Errorf("smoke %s: %w", backend, err)
		}
		fmt.Printf("smoke %s: ok\n", backend)
	}
	return nil
}

func smoke(bin, backend string) error {
	dir, err := os.MkdirTemp("", "relgraph-smoke-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	run := func(args ...string) (string, error) {
		return sh.Output(bin, append([]string{"--config-dir", dir}, args...)...)
	}
	if _, err := run("init", "--backend", backend); err != nil {
		return err
	}
	if err := sh.Copy(filepath.Join(dir, "mapping.yaml"), filepath.Join("testdata", "shop", "mapping.yaml")); err != nil {
		return err
	}
	if _, err := run("seed", filepath.Join("testdata", "shop", "seed.yaml")); err != nil {
		return err
	}
	if _, err := run("add", "Customer|bob", "Customer.Orders", "Order|1002"); err != nil {
		return err
	}
	out, err := run("show", "Customer|bob")
	if err != nil {
		return err
	}
	if !strings.Contains(out, "Order|1003") || !strings.Contains(out, "Order|1002") {
		return fmt.Errorf("bob's orders after add: %q", out)
	}
	if _, err := run("delete", "Customer|alice"); err != nil {
		return err
	}
	out, err = run("show", "Order|1001")
	if err != nil {
		return err
	}
	if !strings.Contains(out, "Customer: null") {
		return fmt.Errorf("order 1001 after deleting its customer: %q", out)
	}
	return nil
}
