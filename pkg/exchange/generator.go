package exchange

import (
	"math/rand"

	"github.com/shubham-shewale/abx-client/pkg/models"
)

// for deterministic values
type Rand interface {
	Intn(n int) int
}

type RealRand struct{ *rand.Rand }

func NewRealRand(seed int64) RealRand { return RealRand{rand.New(rand.NewSource(seed))} }

func (r RealRand) Intn(n int) int { return r.Rand.Intn(n) }

var DefaultSymbols = []string{"MSFT", "AAPL", "AMZN", "META"}

// Generator synthesizes an exchange session's packet book.
type Generator struct {
	rand       Rand
	symbols    []string
	basePrices map[string]int32
}

func NewGenerator(rnd Rand, symbols []string) *Generator {
	base := make(map[string]int32, len(symbols))
	for i, s := range symbols {
		base[s] = int32(100 + 10*i)
	}
	return &Generator{
		rand:       rnd,
		symbols:    symbols,
		basePrices: base,
	}
}

// Generate returns n packets with sequences 1..n.
func (g *Generator) Generate(n int) []models.Packet {
	if len(g.symbols) == 0 || n <= 0 {
		return nil
	}

	packets := make([]models.Packet, 0, n)
	for seq := 1; seq <= n; seq++ {
		symbol := g.symbols[g.rand.Intn(len(g.symbols))]
		side := models.SideBuy
		if g.rand.Intn(2) == 1 {
			side = models.SideSell
		}
		fluctuation := int32(g.rand.Intn(11)) - 5

		packets = append(packets, models.Packet{
			Symbol:   symbol,
			Side:     side,
			Quantity: int32(1 + g.rand.Intn(100)),
			Price:    g.basePrices[symbol] + fluctuation,
			Sequence: int32(seq),
		})
	}
	return packets
}
