package coin

import (
	"encoding/json"
	"fmt"

	"github.com/saintthor/chainplay/crypto"
)

// WireChain is the JSON shape from spec §6:
// {id, definition, serial_number, current_owner, blocks: [...]}.
type WireChain struct {
	ID           string           `json:"id"`
	Definition   *Definition      `json:"definition"`
	SerialNumber int64            `json:"serial_number"`
	CurrentOwner crypto.PublicKey `json:"current_owner"`
	Blocks       []*Block         `json:"blocks"`
}

// SerializeChain renders c to its wire form.
func SerializeChain(c *Chain) ([]byte, error) {
	w := WireChain{
		ID:           c.ChainID(),
		Definition:   c.definition,
		SerialNumber: c.serial,
		CurrentOwner: c.currentOwner,
		Blocks:       c.blocks,
	}
	return json.Marshal(w)
}

// DeserializeChain parses data and re-verifies every block's id and
// signature before returning a trusted Chain, per spec §6: deserialization
// must never trust wire data without re-verification.
func DeserializeChain(data []byte) (*Chain, error) {
	var w WireChain
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("coin: deserialize chain: %w", err)
	}
	if len(w.Blocks) == 0 {
		return nil, fmt.Errorf("coin: wire chain has no blocks")
	}
	root := w.Blocks[0]
	if !root.VerifyID() {
		return nil, fmt.Errorf("coin: root block id does not match its fields")
	}
	if ok, err := root.VerifySignature(); err != nil || !ok {
		return nil, fmt.Errorf("coin: root block signature invalid")
	}
	if root.ID != w.ID {
		return nil, fmt.Errorf("coin: wire chain id does not match root block id")
	}

	c, err := NewChain(root, w.Definition, w.SerialNumber)
	if err != nil {
		return nil, err
	}
	for _, b := range w.Blocks[1:] {
		if !b.VerifyID() {
			return nil, fmt.Errorf("coin: block %s id does not match its fields", b.ID)
		}
		res := c.Append(b)
		if !res.Accepted {
			return nil, fmt.Errorf("coin: block %s rejected on replay: %s", b.ID, res.Reason)
		}
	}
	if c.currentOwner != w.CurrentOwner {
		return nil, fmt.Errorf("coin: wire current_owner does not match replayed chain")
	}
	return c, nil
}
