package models

import (
	"encoding/json"
	"fmt"
)

// Side is the raw order-side byte carried in a packet frame.
type Side byte

const (
	SideBuy  Side = 'B'
	SideSell Side = 'S'
)

func (s Side) String() string { return string(rune(s)) }

// MarshalJSON renders the side as a one-character string.
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	if len(str) != 1 {
		return fmt.Errorf("side must be a single character, got %q", str)
	}
	*s = Side(str[0])
	return nil
}

// Packet is one decoded ABX market-data record.
type Packet struct {
	Symbol   string `json:"symbol"`   // 4 ASCII characters
	Side     Side   `json:"side"`     // 'B' or 'S' from a well-behaved exchange
	Quantity int32  `json:"quantity"`
	Price    int32  `json:"price"`
	Sequence int32  `json:"sequence"` // unique per exchange session
}

// Sequences returns the sequence numbers of packets in order.
func Sequences(packets []Packet) []int32 {
	seqs := make([]int32, len(packets))
	for i, p := range packets {
		seqs[i] = p.Sequence
	}
	return seqs
}
