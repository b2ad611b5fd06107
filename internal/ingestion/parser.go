package ingestion

import (
	"FluxLedger/internal/core"
	"FluxLedger/internal/ledger"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrMissingRequestID = errors.New("request_id is required")

// ParseCommand decodes a raw command payload into a typed core.Command.
// Payloads are JSON objects with snake_case fields; unknown fields are
// rejected so producer typos do not silently zero a field.
func ParseCommand(raw RawCommand) (core.Command, error) {
	cmd, ok := core.NewCommand(raw.Operation)
	if !ok {
		return nil, fmt.Errorf("unknown operation: %q", raw.Operation)
	}

	dec := json.NewDecoder(bytes.NewReader(raw.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cmd); err != nil {
		return nil, fmt.Errorf("parse %s: %w", raw.Operation, err)
	}

	if cmd.RequestKey() == "" {
		return nil, fmt.Errorf("parse %s: %w", raw.Operation, ErrMissingRequestID)
	}
	if err := checkRequired(cmd); err != nil {
		return nil, fmt.Errorf("parse %s: %w", raw.Operation, err)
	}
	return cmd, nil
}

// checkRequired rejects payloads that omit an identity or reference. JSON
// decoding leaves those as zero values, which would otherwise address the
// nil user or an empty group.
func checkRequired(cmd core.Command) error {
	switch c := cmd.(type) {
	case *core.InitializePlatform:
		return requireUser("admin", c.Admin)
	case *core.CreateGroup:
		return requireUser("admin", c.Admin)
	case *core.JoinGroup:
		return errors.Join(requireAddress("group", c.Group), requireUser("user", c.User))
	case *core.CreateBet:
		return errors.Join(requireAddress("group", c.Group), requireUser("creator", c.Creator))
	case *core.PlaceBet:
		return errors.Join(requireAddress("group", c.Group), requireUser("user", c.User))
	case *core.ResolveBet:
		return errors.Join(requireAddress("group", c.Group), requireUser("resolver", c.Resolver))
	case *core.ClaimWinnings:
		return errors.Join(requireAddress("group", c.Group), requireUser("user", c.User))
	case *core.Deposit:
		return requireUser("user", c.User)
	case *core.Withdraw:
		return requireUser("user", c.User)
	}
	return nil
}

func requireUser(field string, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func requireAddress(field string, addr ledger.Address) error {
	if addr.IsZero() {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}
