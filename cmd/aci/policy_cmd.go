package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"aci/internal/infra/policyopa"
	"aci/internal/usecase"
)

func runBundleHash(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "bundle hash requires <bundle_dir>")
		return 1
	}
	hash, err := policyopa.ComputeBundleHashFromPath(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "compute bundle hash: %v\n", err)
		return 1
	}
	fmt.Println(hash)
	return 0
}

func runPolicyEval(args []string) int {
	var bundlePath, inputPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--bundle":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--bundle requires a value")
				return 1
			}
			i++
			bundlePath = args[i]
		case "--input":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--input requires a value")
				return 1
			}
			i++
			inputPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag %q\n", args[i])
			return 1
		}
	}
	if bundlePath == "" || inputPath == "" {
		fmt.Fprintln(os.Stderr, "policy eval requires --bundle and --input")
		return 1
	}

	payload, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		return 1
	}
	var input usecase.GatingPolicyInput
	if err := json.Unmarshal(payload, &input); err != nil {
		fmt.Fprintf(os.Stderr, "decode input: %v\n", err)
		return 1
	}

	ctx := context.Background()
	engine, err := policyopa.NewEngineFromBundlePath(ctx, bundlePath, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load policy bundle: %v\n", err)
		return 1
	}
	result, err := engine.Evaluate(ctx, input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "evaluate policy: %v\n", err)
		return 1
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	if result.Allow {
		return 0
	}
	return 1
}
