package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "ledger":
		if len(args) >= 3 && args[2] == "verify" {
			return runLedgerVerify(args[3:])
		}
	case "audit":
		if len(args) >= 3 && args[2] == "verify" {
			return runAuditVerify(args[3:])
		}
	case "bundle":
		if len(args) >= 3 && args[2] == "hash" {
			return runBundleHash(args[3:])
		}
	case "policy":
		if len(args) >= 3 && args[2] == "eval" {
			return runPolicyEval(args[3:])
		}
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "aci"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s ledger verify <export.json>\n", name)
	fmt.Fprintf(os.Stderr, "  %s audit verify <events.json>\n", name)
	fmt.Fprintf(os.Stderr, "  %s bundle hash <bundle_dir>\n", name)
	fmt.Fprintf(os.Stderr, "  %s policy eval --bundle <bundle_dir> --input <input.json>\n", name)
}
