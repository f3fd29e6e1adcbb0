package smcogtrees

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kingrea/helix/internal/record"
)

// TreeBuilder turns a classified CDS into a newick tree against its smCOG
// family. Implementations must be safe for concurrent use.
type TreeBuilder interface {
	Build(ctx context.Context, smcog string, cds *record.CDSFeature) (string, error)
}

// BuiltinBuilder places the query among synthetic family members by amino
// acid composition distance. It is deterministic.
type BuiltinBuilder struct{}

const referenceMembers = 3

// Build implements TreeBuilder.
func (BuiltinBuilder) Build(ctx context.Context, smcog string, cds *record.CDSFeature) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	query := composition(cds.Translation)
	if query == nil {
		return "", fmt.Errorf("cds %s has no translation", cds.Name)
	}
	leaves := make([]string, 0, referenceMembers+1)
	leaves = append(leaves, fmt.Sprintf("%s:%.4f", leafName(cds.Name), 0.05))
	for i := 0; i < referenceMembers; i++ {
		ref := syntheticProfile(smcog, i)
		leaves = append(leaves, fmt.Sprintf("%s_%d:%.4f", smcog, i+1, distance(query, ref)))
	}
	return fmt.Sprintf("((%s,%s):0.0100,%s);", leaves[0], leaves[1], strings.Join(leaves[2:], ",")), nil
}

const aminoAcids = "ACDEFGHIKLMNPQRSTVWY"

func composition(seq string) []float64 {
	seq = strings.ToUpper(seq)
	counts := make([]float64, len(aminoAcids))
	var total float64
	for _, r := range seq {
		if idx := strings.IndexRune(aminoAcids, r); idx >= 0 {
			counts[idx]++
			total++
		}
	}
	if total == 0 {
		return nil
	}
	for i := range counts {
		counts[i] /= total
	}
	return counts
}

func syntheticProfile(smcog string, member int) []float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%d", smcog, member)
	seed := h.Sum64()
	profile := make([]float64, len(aminoAcids))
	var total float64
	for i := range profile {
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		profile[i] = float64(seed%1000) + 1
		total += profile[i]
	}
	for i := range profile {
		profile[i] /= total
	}
	return profile
}

func distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Round(math.Sqrt(sum)*10000) / 10000
}

func leafName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '(', ')', ',', ':', ';', ' ':
			return '_'
		}
		return r
	}, name)
}

// ExecBuilder runs an external tree tool. The tool receives the smCOG ID as
// its only argument and the query as FASTA on stdin, and prints newick.
// Transient failures are retried with exponential backoff.
type ExecBuilder struct {
	Path     string
	Attempts int
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Build implements TreeBuilder.
func (b ExecBuilder) Build(ctx context.Context, smcog string, cds *record.CDSFeature) (string, error) {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)

	var tree string
	op := func() error {
		out, err := b.runOnce(ctx, smcog, cds)
		if err != nil {
			return err
		}
		newick := strings.TrimSpace(out)
		if !strings.HasSuffix(newick, ";") || !strings.HasPrefix(newick, "(") {
			return backoff.Permanent(fmt.Errorf("%s produced invalid newick for %s", b.Path, cds.Name))
		}
		tree = newick
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("tree tool failed, retrying", zap.String("cds", cds.Name), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, retry, notify); err != nil {
		return "", err
	}
	return tree, nil
}

func (b ExecBuilder) runOnce(ctx context.Context, smcog string, cds *record.CDSFeature) (string, error) {
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, b.Path, smcog)
	cmd.Stdin = strings.NewReader(fmt.Sprintf(">%s\n%s\n", cds.Name, cds.Translation))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", backoff.Permanent(err)
		}
		return "", fmt.Errorf("%s: %w: %s", b.Path, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
