package main

import (
	"encoding/json"
	"fmt"
	"os"

	"aci/internal/domain"
)

// ledgerExport is the offline export format: one agent's origin record
// and ledgers, as returned by the provenance endpoints.
type ledgerExport struct {
	AgentID         string                        `json:"agent_id"`
	Origin          *domain.OriginRecord          `json:"origin,omitempty"`
	Ownership       []domain.OwnershipRecord      `json:"ownership,omitempty"`
	Actions         []domain.ActionRecord         `json:"actions,omitempty"`
	Transformations []domain.TransformationRecord `json:"transformations,omitempty"`
}

func runLedgerVerify(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "ledger verify requires <export.json>")
		return 1
	}

	payload, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "read export: %v\n", err)
		return 1
	}
	var export ledgerExport
	if err := json.Unmarshal(payload, &export); err != nil {
		fmt.Fprintf(os.Stderr, "decode export: %v\n", err)
		return 1
	}

	allValid := true
	printChain := func(name string, count int, v domain.ChainVerification) {
		status := "ok"
		if !v.Valid {
			status = "BROKEN"
			allValid = false
		}
		fmt.Printf("%-16s %d records  %s\n", name, count, status)
		if !v.Valid && v.BrokenAt > 0 {
			fmt.Printf("  broken at sequence %d\n", v.BrokenAt)
		}
		for _, problem := range v.Errors {
			fmt.Printf("  - %s\n", problem)
		}
	}

	if export.Origin != nil {
		printChain("origin", 1, domain.VerifyOrigin(export.Origin))
	}
	printChain("ownership", len(export.Ownership), domain.VerifyOwnershipChain(export.Ownership))
	printChain("actions", len(export.Actions), domain.VerifyActionChain(export.Actions))
	printChain("transformations", len(export.Transformations), domain.VerifyTransformationChain(export.Transformations))

	if allValid {
		fmt.Printf("agent %s: all chains valid\n", export.AgentID)
		return 0
	}
	fmt.Printf("agent %s: chain verification FAILED\n", export.AgentID)
	return 1
}
