package docsgraph

import (
	"os"

	"github.com/antigravity-dev/ptc/internal/store"
)

// sourceHash hashes the concatenated contents of owned files in the
// order given. A node with no owned files hashes an empty payload,
// so its staleness never flips (spec §8: "no owned files -> is_stale
// = false on first generation, then remains false forever").
func sourceHash(ownedFiles []string) string {
	var concat []byte
	for _, f := range ownedFiles {
		content, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		concat = append(concat, content...)
	}
	return store.Hash(concat)
}

// computeStaleness hashes a doc's owned files now and compares against
// the previously stored hash. A zero-value previousHash (first
// generation) is never stale.
func computeStaleness(ownedFiles []string, previousHash string) Staleness {
	now := sourceHash(ownedFiles)
	return Staleness{
		SourceHash: now,
		IsStale:    previousHash != "" && now != previousHash,
	}
}
