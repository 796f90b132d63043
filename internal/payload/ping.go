package payload

const (
	// PingComputeUnitPrice is the priority fee attached to every ping.
	PingComputeUnitPrice = 1_000_000
	// PingComputeUnitLimit is enough for a single native transfer.
	PingComputeUnitLimit = 450
)

// PingMessage is a self-transfer of i units from payer, with a fixed priority
// fee. The varying amount keeps each index's signature distinct.
func PingMessage(payer Identity, i uint64) Message {
	return NewMessage(payer,
		SetComputeUnitPrice(PingComputeUnitPrice),
		SetComputeUnitLimit(PingComputeUnitLimit),
		Transfer(payer, payer, i),
	)
}

// PingBatch returns n ping messages indexed 0..n-1.
func PingBatch(payer Identity, n int) []Message {
	out := make([]Message, n)
	for i := range out {
		out[i] = PingMessage(payer, uint64(i))
	}
	return out
}
