package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// ObjectStore is the optional content-addressed permanence tier (spec §6).
// A real implementation (IPFS, a pinning service) is an external
// collaborator out of scope for this core; LocalObjectStore below is the
// only concrete instance shipped in-core.
type ObjectStore interface {
	Add(content []byte) (id string, err error)
	Get(id string) ([]byte, error)
	Pin(id string) error
}

// Artifact is the persisted shape of spec §3's Artifact type.
type Artifact struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Project   string `json:"project"`
	Hash      string `json:"hash"`
	Storage   string `json:"storage"`
	ObjectCID string `json:"object_cid,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ContentStore computes an identity for every artifact, writes it to the
// document store synchronously, and (if an object store is configured)
// spawns a detached write to the content-addressed object store.
//
// Grounded on original_source/ptc/ipfs.py's dual-write design (hash
// always computed; object-store add is fire-and-forget; document
// remains valid with storage="document_store" if the object store is
// absent or fails) reframed into the teacher's constructor-injected
// service shape (internal/chief.Chief, internal/learner.Reporter: a
// struct holding *store.Store, a logger, and its collaborators).
type ContentStore struct {
	docs    *Store
	objects ObjectStore
	logger  *slog.Logger
	submit  func(func())
}

// New constructs a ContentStore. objects may be nil (no object-store
// tier configured); submit schedules a fire-and-forget background
// write and may be nil (effect runs synchronously, useful in tests).
func New(docs *Store, objects ObjectStore, logger *slog.Logger, submit func(func())) *ContentStore {
	if submit == nil {
		submit = func(f func()) { f() }
	}
	return &ContentStore{docs: docs, objects: objects, logger: logger, submit: submit}
}

// Hash computes "sha256:<hex>" for any payload. UTF-8 bytes for strings,
// raw bytes otherwise.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// DualStore implements spec §4.1's dual_store operation.
func (cs *ContentStore) DualStore(name, artifactType, content, project string) (Artifact, error) {
	hash := Hash([]byte(content))
	artifact := Artifact{
		Name:    name,
		Type:    artifactType,
		Content: content,
		Project: project,
		Hash:    hash,
		Storage: "document_store",
	}

	doc := map[string]any{
		"name":    name,
		"type":    artifactType,
		"content": content,
		"project": project,
		"hash":    hash,
		"storage": "document_store",
	}
	if err := cs.docs.Put("artifacts", hash, doc, hash); err != nil {
		return artifact, fmt.Errorf("content store: dual_store write: %w", err)
	}

	if cs.objects != nil {
		cs.submit(func() {
			cid, err := cs.objects.Add([]byte(content))
			if err != nil {
				if cs.logger != nil {
					cs.logger.Warn("content store: object store add failed", "hash", hash, "error", err)
				}
				return
			}
			if err := cs.docs.SetObjectCID("artifacts", hash, cid); err != nil && cs.logger != nil {
				cs.logger.Warn("content store: backfill object cid failed", "hash", hash, "error", err)
			}
		})
	}

	return artifact, nil
}

// Migrate performs an idempotent backfill: documents already bearing
// both a hash and an object_cid are skipped.
func (cs *ContentStore) Migrate(collection string, batch int) (migrated int, err error) {
	if cs.objects == nil {
		return 0, nil
	}

	docs, err := cs.docs.Find(collection, nil, 0)
	if err != nil {
		return 0, fmt.Errorf("content store: migrate list %s: %w", collection, err)
	}

	for _, d := range docs {
		if migrated >= batch {
			break
		}
		if d.Hash != "" && d.ObjectCID != "" {
			continue
		}
		content, _ := d.Content["content"].(string)
		cid, err := cs.objects.Add([]byte(content))
		if err != nil {
			if cs.logger != nil {
				cs.logger.Warn("content store: migrate add failed", "collection", collection, "id", d.ID, "error", err)
			}
			continue
		}
		if err := cs.docs.SetObjectCID(collection, d.ID, cid); err != nil {
			if cs.logger != nil {
				cs.logger.Warn("content store: migrate backfill failed", "collection", collection, "id", d.ID, "error", err)
			}
			continue
		}
		migrated++
	}
	return migrated, nil
}
