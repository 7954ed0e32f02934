package blockchain

import (
	"bytes"
	"slices"
	"time"

	"github.com/bitcoin-sv/chaincore/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/jellydator/ttlcache/v3"
)

// OrphanPool holds blocks that are not (yet) part of the main chain, either
// because their parent is unknown or because their branch carries too little
// work. The oldest entries are evicted beyond capacity and after ttl.
type OrphanPool struct {
	cache *ttlcache.Cache[chainhash.Hash, *model.Block]
}

func NewOrphanPool(capacity int, ttl time.Duration) *OrphanPool {
	initPrometheusMetrics()

	if capacity <= 0 {
		capacity = 1
	}

	return &OrphanPool{
		cache: ttlcache.New[chainhash.Hash, *model.Block](
			ttlcache.WithTTL[chainhash.Hash, *model.Block](ttl),
			ttlcache.WithCapacity[chainhash.Hash, *model.Block](uint64(capacity)),
			ttlcache.WithDisableTouchOnHit[chainhash.Hash, *model.Block](),
		),
	}
}

// Start runs the expiry loop until Stop.
func (p *OrphanPool) Start() {
	go p.cache.Start()
}

func (p *OrphanPool) Stop() {
	p.cache.Stop()
}

// Add returns false when the block is already pooled.
func (p *OrphanPool) Add(block *model.Block) bool {
	hash := *block.Hash()

	if p.cache.Has(hash) {
		return false
	}

	p.cache.Set(hash, block, ttlcache.DefaultTTL)

	prometheusOrphanPoolSize.Set(float64(p.cache.Len()))

	return true
}

func (p *OrphanPool) Get(hash *chainhash.Hash) *model.Block {
	item := p.cache.Get(*hash)
	if item == nil {
		return nil
	}

	return item.Value()
}

func (p *OrphanPool) Remove(hash *chainhash.Hash) {
	p.cache.Delete(*hash)

	prometheusOrphanPoolSize.Set(float64(p.cache.Len()))
}

// Children returns the pooled blocks building on hash, ordered by hash.
func (p *OrphanPool) Children(hash *chainhash.Hash) []*model.Block {
	var children []*model.Block

	for _, item := range p.cache.Items() {
		if block := item.Value(); block.Header.HashPrevBlock.IsEqual(hash) {
			children = append(children, block)
		}
	}

	slices.SortFunc(children, func(a, b *model.Block) int {
		return bytes.Compare(a.Hash()[:], b.Hash()[:])
	})

	return children
}

// Trace returns the pooled ancestry of block, oldest first, ending in block
// itself. The first entry's parent is not pooled.
func (p *OrphanPool) Trace(block *model.Block) []*model.Block {
	trace := []*model.Block{block}

	for {
		parent := p.Get(trace[0].Header.HashPrevBlock)
		if parent == nil {
			return trace
		}

		trace = append([]*model.Block{parent}, trace...)
	}
}

func (p *OrphanPool) Len() int {
	return p.cache.Len()
}
