package architect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/antigravity-dev/ptc/internal/embedding"
	"github.com/antigravity-dev/ptc/internal/engine"
	"github.com/antigravity-dev/ptc/internal/executor"
	"github.com/antigravity-dev/ptc/internal/git"
	"github.com/antigravity-dev/ptc/internal/store"
)

const blueprintCollection = "blueprints"

// Architect turns design intents into cached, verifiable blueprints.
//
// Grounded on the teacher's constructor-injected service shape
// (internal/chief.Chief: New(cfg, store, dispatcher, logger) *Chief) —
// a struct holding its storage, tree, and optional collaborators,
// built once by the caller and reused across requests.
type Architect struct {
	docs                *store.Store
	tree                *engine.Tree
	embeddingIdx        *embedding.Index
	gitLayer            *git.Layer
	similarityThreshold float64

	logger *slog.Logger
	submit func(func())
}

// New builds an Architect. embeddingIdx and gitLayer may be nil — the
// L2 semantic cache and the design-branch commit are both best-effort
// per spec §4.7 and degrade to no-ops when their collaborator is unset.
func New(docs *store.Store, tree *engine.Tree, embeddingIdx *embedding.Index, gitLayer *git.Layer, similarityThreshold float64, logger *slog.Logger, submit func(func())) *Architect {
	if similarityThreshold <= 0 {
		similarityThreshold = 0.9
	}
	if logger == nil {
		logger = slog.Default()
	}
	if submit == nil {
		submit = func(f func()) { f() }
	}
	return &Architect{
		docs:                docs,
		tree:                tree,
		embeddingIdx:        embeddingIdx,
		gitLayer:            gitLayer,
		similarityThreshold: similarityThreshold,
		logger:              logger,
		submit:              submit,
	}
}

func intentHash(intent string) string {
	normalized := strings.ToLower(strings.TrimSpace(intent))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// stableJSON round-trips v through a map so object keys marshal in
// sorted order — Go's encoding/json sorts map[string]any keys on
// marshal — giving content_hash a stable input regardless of struct
// field order, per spec §4.7's "stable JSON, sorted keys."
func stableJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func (a *Architect) contentHash(bp *Blueprint) (string, error) {
	subtree := struct {
		Where            Where         `json:"where"`
		How              How           `json:"how"`
		Interconnections []string      `json:"interconnections,omitempty"`
		BuilderTasks     []BuilderTask `json:"builder_tasks"`
		Acceptance       Acceptance    `json:"acceptance"`
		GUISpec          map[string]any `json:"gui_spec,omitempty"`
	}{bp.Where, bp.How, bp.Interconnections, bp.BuilderTasks, bp.Acceptance, bp.GUISpec}

	body, err := stableJSON(subtree)
	if err != nil {
		return "", fmt.Errorf("architect: hash content subtree: %w", err)
	}
	return store.Hash(body), nil
}

func blueprintID(intent string) string {
	words := strings.Fields(intent)
	if len(words) > 4 {
		words = words[:4]
	}
	slug := strings.ToLower(strings.Join(words, "-"))
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	if slug == "" {
		slug = "blueprint"
	}
	sum := sha256.Sum256([]byte(intent))
	return fmt.Sprintf("%s-%s", slug, hex.EncodeToString(sum[:])[:6])
}

func (a *Architect) load(id string) (*Blueprint, error) {
	doc, err := a.docs.Get(blueprintCollection, id)
	if err != nil {
		return nil, fmt.Errorf("architect: load blueprint %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	return decodeBlueprint(doc.Content)
}

func decodeBlueprint(content map[string]any) (*Blueprint, error) {
	body, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("architect: marshal blueprint content: %w", err)
	}
	var bp Blueprint
	if err := json.Unmarshal(body, &bp); err != nil {
		return nil, fmt.Errorf("architect: decode blueprint: %w", err)
	}
	return &bp, nil
}

func (a *Architect) store(bp *Blueprint) error {
	body, err := stableJSON(bp)
	if err != nil {
		return fmt.Errorf("architect: marshal blueprint: %w", err)
	}
	var content map[string]any
	if err := json.Unmarshal(body, &content); err != nil {
		return fmt.Errorf("architect: decode blueprint for storage: %w", err)
	}
	if err := a.docs.Put(blueprintCollection, bp.ID, content, bp.ContentHash); err != nil {
		return fmt.Errorf("architect: store blueprint %s: %w", bp.ID, err)
	}
	return nil
}

// findByIntentHash is the L1 exact-match cache lookup.
func (a *Architect) findByIntentHash(hash string) (*Blueprint, error) {
	docs, err := a.docs.Find(blueprintCollection, map[string]string{"intent_hash": hash}, 1)
	if err != nil {
		return nil, fmt.Errorf("architect: find by intent hash: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return decodeBlueprint(docs[0].Content)
}

// CreateBlueprint implements spec §4.7's create_blueprint, satisfying
// internal/executor's BlueprintCreator interface so the design mode can
// delegate to it without an import cycle.
func (a *Architect) CreateBlueprint(ctx context.Context, intent string, bctx executor.BlueprintContext) (executor.BlueprintResult, error) {
	hash := intentHash(intent)

	if bp, err := a.findByIntentHash(hash); err != nil {
		return executor.BlueprintResult{}, err
	} else if bp != nil {
		return toResult(bp, true), nil
	}

	if a.embeddingIdx != nil && a.embeddingIdx.Enabled() {
		matches, err := a.embeddingIdx.FindSimilarBlueprints(ctx, intent, 1)
		if err != nil && a.logger != nil {
			a.logger.Warn("architect: semantic cache lookup failed", "error", err)
		}
		if len(matches) > 0 && matches[0].Score >= a.similarityThreshold {
			if bp, err := a.load(matches[0].ID); err == nil && bp != nil {
				return toResult(bp, true), nil
			}
		}
	}

	bp := &Blueprint{
		ID:         blueprintID(intent),
		Name:       intent,
		IntentHash: hash,
		Intent:     intent,
		Version:    1,
		Status:     StatusDraft,
		Where:      Where{Modules: inferModules(bctx.Files)},
		How:        How{Patterns: inferPatterns(bctx.Rules)},
		TargetNode: bctx.NodeID,
	}
	if bctx.NodeID != "" {
		bp.Interconnections = []string{bctx.NodeID}
	}

	hash2, err := a.contentHash(bp)
	if err != nil {
		return executor.BlueprintResult{}, err
	}
	bp.ContentHash = hash2

	if err := a.store(bp); err != nil {
		return executor.BlueprintResult{}, err
	}

	if a.embeddingIdx != nil {
		a.embeddingIdx.EmbedAndStore(blueprintCollection, bp.ID, "blueprint: "+intent)
	}

	if a.gitLayer != nil {
		a.submit(func() {
			branch, previous, err := a.gitLayer.BranchForBlueprint(bp.ID)
			if err != nil {
				if a.logger != nil {
					a.logger.Warn("architect: open design branch failed", "blueprint_id", bp.ID, "error", err)
				}
				return
			}
			body, _ := stableJSON(bp)
			artifact := store.Artifact{Name: bp.ID, Type: "blueprint", Content: string(body), Hash: bp.ContentHash}
			if _, err := a.gitLayer.CommitArtifact(artifact, nil, fmt.Sprintf("blueprint: %s", bp.Name)); err != nil && a.logger != nil {
				a.logger.Warn("architect: commit blueprint artifact failed", "blueprint_id", bp.ID, "branch", branch, "error", err)
			}
			_ = a.gitLayer.RestoreBranch(previous)
		})
	}

	return toResult(bp, false), nil
}

func toResult(bp *Blueprint, cached bool) executor.BlueprintResult {
	return executor.BlueprintResult{
		ID:          bp.ID,
		Name:        bp.Name,
		Cached:      cached,
		TaskCount:   len(bp.BuilderTasks),
		Status:      string(bp.Status),
		ContentHash: bp.ContentHash,
	}
}

// inferModules derives where.modules from file path prefixes — the
// first path segment of each referenced file, deduplicated.
func inferModules(files []string) []string {
	seen := map[string]bool{}
	var modules []string
	for _, f := range files {
		parts := strings.SplitN(f, "/", 2)
		if len(parts) == 0 || parts[0] == "" {
			continue
		}
		if !seen[parts[0]] {
			seen[parts[0]] = true
			modules = append(modules, parts[0])
		}
	}
	return modules
}

// inferPatterns derives how.patterns from each rule's action, per spec
// §4.7's fixed mapping.
func inferPatterns(rules []engine.Rule) []string {
	seen := map[string]bool{}
	var patterns []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			patterns = append(patterns, p)
		}
	}
	for _, r := range rules {
		switch r.Action {
		case engine.ActionLog:
			add("fire-and-forget")
		case engine.ActionBlock:
			add("gate")
		case engine.ActionEscalate:
			add("escalation")
		}
	}
	return patterns
}

// BlueprintToTasks converts each builder task into a PTC task,
// inheriting the blueprint's lineage/escalation, and records
// blueprint.children + status=building (spec §4.7 additions: the
// status flips to building as soon as tasks are generated, not only at
// verify).
func (a *Architect) BlueprintToTasks(bp *Blueprint) ([]engine.Task, error) {
	tasks := make([]engine.Task, 0, len(bp.BuilderTasks))
	children := make([]string, 0, len(bp.BuilderTasks))

	for _, bt := range bp.BuilderTasks {
		targetNode := bt.TargetNode
		if targetNode == "" {
			targetNode = bp.TargetNode
		}
		tasks = append(tasks, engine.Task{
			NodeID:      targetNode,
			Intent:      bt.Intent,
			Lineage:     bp.Lineage,
			Files:       bt.Files,
			Escalation:  bp.Escalation,
			BlueprintID: bp.ID,
			TaskID:      bt.TaskID,
			DependsOn:   bt.DependsOn,
		})
		children = append(children, bt.TaskID)
	}

	bp.Children = children
	bp.Status = StatusBuilding
	bp.Execution.Total = len(tasks)
	if err := a.store(bp); err != nil {
		return nil, err
	}

	return tasks, nil
}

// Validate checks a blueprint against spec §4.7's three conditions.
func (a *Architect) Validate(bp *Blueprint) ValidationResult {
	var errs, warnings []string

	for _, bt := range bp.BuilderTasks {
		targetNode := bt.TargetNode
		if targetNode == "" {
			targetNode = bp.TargetNode
		}
		if targetNode == "" || (a.tree != nil && a.tree.Get(targetNode) == nil) {
			errs = append(errs, fmt.Sprintf("task %s: target_node %q does not exist in the tree", bt.TaskID, targetNode))
			continue
		}
		if strings.Contains(strings.ToLower(bt.Intent), "create") {
			continue
		}
		for _, f := range bt.Files {
			if _, err := os.Stat(f); err != nil {
				warnings = append(warnings, fmt.Sprintf("task %s: referenced file %q does not exist", bt.TaskID, f))
			}
		}
	}

	if bp.Name == "" {
		errs = append(errs, "blueprint has no what/name")
	}
	if len(bp.BuilderTasks) == 0 {
		errs = append(errs, "blueprint has no builder_tasks")
	}
	if len(bp.Acceptance.Criteria) == 0 {
		errs = append(errs, "blueprint has no acceptance.criteria")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}

// Verify sets metadata.status from the PTC results for the blueprint's
// tasks: verified if all completed, failed if any failed or was
// blocked, building otherwise.
func (a *Architect) Verify(bp *Blueprint, results map[string]engine.Result) (*Blueprint, error) {
	completed, failed := 0, 0
	for _, taskID := range bp.Children {
		r, ok := results[taskID]
		if !ok {
			continue
		}
		switch r.Status {
		case engine.StatusCompleted:
			completed++
		case engine.StatusFailed, engine.StatusBlocked:
			failed++
		}
	}

	bp.Execution.Completed = completed
	bp.Execution.Failed = failed

	switch {
	case failed > 0:
		bp.Status = StatusFailed
	case len(bp.Children) > 0 && completed == len(bp.Children):
		bp.Status = StatusVerified
	default:
		bp.Status = StatusBuilding
	}

	if err := a.store(bp); err != nil {
		return nil, err
	}
	return bp, nil
}

// Update deep-merges updates into the blueprint's content, recomputes
// content_hash, bumps blueprint_version, and re-stores/re-embeds.
func (a *Architect) Update(ctx context.Context, id string, updates map[string]any) (*Blueprint, error) {
	bp, err := a.load(id)
	if err != nil {
		return nil, err
	}
	if bp == nil {
		return nil, fmt.Errorf("architect: blueprint %s not found", id)
	}

	body, err := json.Marshal(bp)
	if err != nil {
		return nil, fmt.Errorf("architect: marshal blueprint for update: %w", err)
	}
	var content map[string]any
	if err := json.Unmarshal(body, &content); err != nil {
		return nil, fmt.Errorf("architect: decode blueprint for update: %w", err)
	}

	deepMerge(content, updates)

	merged, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("architect: marshal merged blueprint: %w", err)
	}
	var updated Blueprint
	if err := json.Unmarshal(merged, &updated); err != nil {
		return nil, fmt.Errorf("architect: decode merged blueprint: %w", err)
	}

	updated.Version = bp.Version + 1
	newHash, err := a.contentHash(&updated)
	if err != nil {
		return nil, err
	}
	updated.ContentHash = newHash

	if err := a.store(&updated); err != nil {
		return nil, err
	}
	if a.embeddingIdx != nil {
		a.embeddingIdx.EmbedAndStore(blueprintCollection, updated.ID, "blueprint: "+updated.Intent)
	}

	return &updated, nil
}

// deepMerge merges src into dst in place: nested maps merge
// recursively, any other value (including slices) overwrites the
// destination key outright.
func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[k] = v
	}
}
