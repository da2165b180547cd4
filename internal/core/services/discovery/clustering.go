package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/surveylab/coding-service/internal/core/domain"
	"github.com/surveylab/coding-service/internal/pkg/errors"
)

// minClusterTexts is the smallest corpus the clustering engine accepts;
// below this the similarity structure is too thin to cluster
const minClusterTexts = 10

// similarityThreshold is the cosine similarity above which a text joins
// an existing cluster instead of seeding a new one
const similarityThreshold = 0.78

// ClusteringEngine discovers codes by embedding the full corpus and
// greedily clustering by cosine similarity. Clusters are ranked by size
// descending with ties broken by first-seen order, so output is
// deterministic for identical embeddings. Cluster labels come from the
// language model, with a keyword-derived fallback.
type ClusteringEngine struct {
	embedder Embedder
	model    ChatModel
	logger   *slog.Logger
}

// NewClusteringEngine creates the full-corpus clustering engine. model
// may be nil; cluster labels then fall back to their top terms.
func NewClusteringEngine(embedder Embedder, model ChatModel, logger *slog.Logger) *ClusteringEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClusteringEngine{embedder: embedder, model: model, logger: logger}
}

func (e *ClusteringEngine) Name() domain.EngineName {
	return domain.EngineClustering
}

// Discover clusters the entire corpus; sampleSize is ignored beyond the
// full-corpus sentinel this engine always implies
func (e *ClusteringEngine) Discover(ctx context.Context, texts []string, maxCodes, sampleSize int) ([]domain.CodeDefinition, error) {
	result, err := e.Overview(ctx, texts, maxCodes, sampleSize)
	if err != nil {
		return nil, err
	}
	return result.Codes, nil
}

// Overview clusters the corpus and reports cluster memberships as the
// classification. Texts in clusters beyond the maxCodes cut, and
// single-text outliers, come back unclassified.
func (e *ClusteringEngine) Overview(ctx context.Context, texts []string, maxCodes, sampleSize int) (*OverviewResult, error) {
	if len(texts) < minClusterTexts {
		return nil, errors.TooFewRecords(len(texts), minClusterTexts)
	}

	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, errors.DiscoveryFailed(fmt.Errorf("embedding failed: %w", err), string(e.Name()))
	}
	if len(vectors) != len(texts) {
		return nil, errors.DiscoveryFailed(
			fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts)),
			string(e.Name()))
	}

	clusters := greedyCluster(vectors)

	// Rank by size descending, first-seen order breaking ties
	sort.SliceStable(clusters, func(i, j int) bool {
		return len(clusters[i].members) > len(clusters[j].members)
	})

	result := &OverviewResult{Classified: make(domain.ClassifiedData)}
	byLabel := make(map[string]int)

	for rank, cluster := range clusters {
		memberTexts := make([]string, len(cluster.members))
		for i, idx := range cluster.members {
			memberTexts[i] = texts[idx]
		}

		if rank >= maxCodes || len(cluster.members) < 2 {
			result.Unclassified = append(result.Unclassified, memberTexts...)
			continue
		}

		def := e.describeCluster(ctx, memberTexts)

		// Two clusters can resolve to the same label. Merge them under
		// the first definition so codes stay unique and no member text
		// is lost.
		if i, ok := byLabel[strings.ToLower(def.Code)]; ok {
			existing := &result.Codes[i]
			existing.Count += len(memberTexts)
			existing.Keywords = mergeKeywords(existing.Keywords, def.Keywords)
			result.Classified[existing.Code] = append(result.Classified[existing.Code], memberTexts...)
			continue
		}

		def.Count = len(memberTexts)
		byLabel[strings.ToLower(def.Code)] = len(result.Codes)
		result.Codes = append(result.Codes, def)
		result.Classified[def.Code] = memberTexts
	}

	if len(result.Codes) == 0 {
		return nil, errors.DiscoveryFailed(fmt.Errorf("no cluster of size >= 2 found"), string(e.Name()))
	}

	e.logger.Info("corpus clustered",
		slog.Int("texts", len(texts)),
		slog.Int("clusters", len(clusters)),
		slog.Int("codes", len(result.Codes)),
		slog.Int("unclassified", len(result.Unclassified)))

	return result, nil
}

type cluster struct {
	centroid []float32
	members  []int
}

// greedyCluster assigns each text to the most similar existing centroid
// above the threshold, or seeds a new cluster. Single pass in input
// order, so identical embeddings always cluster identically.
func greedyCluster(vectors [][]float32) []*cluster {
	var clusters []*cluster

	for i, vec := range vectors {
		bestIdx := -1
		bestSim := similarityThreshold
		for ci, c := range clusters {
			if sim := cosineSimilarity(vec, c.centroid); sim > bestSim {
				bestSim = sim
				bestIdx = ci
			}
		}

		if bestIdx == -1 {
			clusters = append(clusters, &cluster{
				centroid: append([]float32(nil), vec...),
				members:  []int{i},
			})
			continue
		}

		c := clusters[bestIdx]
		n := float32(len(c.members))
		for d := range c.centroid {
			c.centroid[d] = (c.centroid[d]*n + vec[d]) / (n + 1)
		}
		c.members = append(c.members, i)
	}

	return clusters
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type clusterLabel struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// describeCluster asks the language model to name one cluster from a
// handful of its members, falling back to the cluster's top terms
func (e *ClusteringEngine) describeCluster(ctx context.Context, memberTexts []string) domain.CodeDefinition {
	terms := topTerms(memberTexts, 5)
	fallback := domain.CodeDefinition{
		Code:     strings.Join(firstN(terms, 2), " "),
		Keywords: terms,
	}
	if fallback.Code == "" {
		fallback.Code = memberTexts[0]
	}

	if e.model == nil {
		return fallback
	}

	examples := firstN(memberTexts, 8)
	payload, err := json.Marshal(examples)
	if err != nil {
		return fallback
	}

	prompt := fmt.Sprintf(
		"These survey answers were grouped together by similarity. Name the category they share "+
			"with a short label, a one-sentence description and 3-8 lowercase keywords.\n\nAnswers:\n%s\n\n"+
			"Respond with exactly this JSON shape:\n"+
			`{"code":"<label>","description":"<sentence>","keywords":["<kw>"]}`,
		payload)

	raw, err := e.model.CompleteJSON(ctx, discoverySystemPrompt, prompt)
	if err != nil {
		e.logger.Warn("cluster naming failed, using top terms", "error", err)
		return fallback
	}

	var label clusterLabel
	if err := json.Unmarshal([]byte(stripFence(raw)), &label); err != nil || strings.TrimSpace(label.Code) == "" {
		return fallback
	}

	def := domain.CodeDefinition{
		Code:        strings.TrimSpace(label.Code),
		Description: label.Description,
		Keywords:    label.Keywords,
	}
	if len(def.Keywords) == 0 {
		def.Keywords = terms
	}
	return def
}

// topTerms returns the most frequent words of length >= 3 across the
// cluster, ties broken by first appearance
func topTerms(texts []string, n int) []string {
	counts := make(map[string]int)
	var order []string

	for _, text := range texts {
		for _, word := range strings.Fields(strings.ToLower(text)) {
			word = strings.Trim(word, ".,;:!?\"'()")
			if len(word) < 3 {
				continue
			}
			if counts[word] == 0 {
				order = append(order, word)
			}
			counts[word]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	return firstN(order, n)
}

// mergeKeywords combines two keyword lists in order, dropping
// case-insensitive duplicates
func mergeKeywords(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, kw := range append(append([]string(nil), a...), b...) {
		key := strings.ToLower(kw)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
	}
	return out
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
