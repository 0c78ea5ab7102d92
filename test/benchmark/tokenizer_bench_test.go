package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/monishk/shardsearch/internal/shard"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Sharded search engines route documents to shards by seq_id modulo
        shard count. Each shard maintains its own trie-backed inverted index and
        answers text-match queries independently. Results are merged across
        shards using a k-way heap merge on the requested sort tuple. This design
        keeps every document, sorted structure, and posting list resident in
        memory for single-digit-millisecond query latency.`,
	"long": strings.Repeat(`Full text search over a typed document model combines
        tokenization with typo-tolerant prefix matching over a bounded edit
        budget. The trie maps each token to the documents containing it, along
        with a per-document term frequency used for scoring. Numeric range
        filters and geopoint radius filters intersect against the text-match
        candidate set before ranking, sorting, and faceting run over what
        remains. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := shard.Tokenize(text)
				_ = tokens
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tokens := shard.Tokenize(text)
			_ = tokens
		}
	})
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "distributed search shard routing trie index "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := shard.Tokenize(text)
				_ = tokens
			}
		})
	}
}
