package preseed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/repository"
)

// Each composer returns a list of self-contained YAML fragments; an
// empty list means "nothing to add". The fragments are deep-merged in
// emission order, so ordering here carries override semantics.

// ComposeArchiveConfig emits the apt configuration: primary and security
// mirrors resolved by architecture class, plus one uniquely-named source
// per additional repository serving the machine's architecture.
func (e *Engine) ComposeArchiveConfig(ctx context.Context, m *domain.Machine) ([]string, error) {
	cfg, err := e.ArchiveConfig(ctx, m)
	if err != nil {
		return nil, err
	}
	return marshalFragment(cfg)
}

// ArchiveConfig builds the apt document ComposeArchiveConfig emits.
func (e *Engine) ArchiveConfig(ctx context.Context, m *domain.Machine) (map[string]any, error) {
	arch, _ := m.SplitArch()

	archive, err := e.defaultArchiveFor(ctx, arch)
	if err != nil {
		return nil, err
	}
	additional, err := e.Store.AdditionalRepositories(ctx, arch)
	if err != nil {
		return nil, fmt.Errorf("failed to list additional repositories: %w", err)
	}

	sources := map[string]any{}
	if archive.Key != "" {
		sources["archive_key"] = map[string]any{"key": archive.Key}
	}
	for _, repo := range additional {
		name := MakeCleanRepoName(&repo, sources)
		entry := map[string]any{
			"source": debLine(&repo, m.DistroSeries),
		}
		if repo.Key != "" {
			entry["key"] = repo.Key
		}
		sources[name] = entry
	}

	apt := map[string]any{
		"preserve_sources_list": false,
		"primary": []any{
			map[string]any{"arches": []any{"default"}, "uri": archive.URL},
		},
		"security": []any{
			map[string]any{"arches": []any{"default"}, "uri": archive.URL},
		},
	}
	if len(sources) > 0 {
		apt["sources"] = sources
	}
	return map[string]any{"apt": apt}, nil
}

// debLine renders the deb source line for an additional repository. The
// distributions override wins over the machine's series; components
// default to main.
func debLine(repo *domain.PackageRepository, series string) string {
	dist := series
	if len(repo.Distributions) > 0 {
		dist = repo.Distributions[0]
	}
	components := repo.Components
	if len(components) == 0 {
		components = []string{"main"}
	}
	return fmt.Sprintf("deb %s %s %s", repo.URL, dist, strings.Join(components, " "))
}

// MakeCleanRepoName transforms a repository's human name into a
// filesystem-safe apt source key, avoiding collisions with names already
// taken.
func MakeCleanRepoName(repo *domain.PackageRepository, taken map[string]any) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, repo.Name)
	if _, exists := taken[name]; exists {
		name = fmt.Sprintf("%s_%d", name, repo.ID)
	}
	return name
}

// defaultArchiveFor resolves the default repository serving arch,
// falling back to the canonical mirror of the arch's class.
func (e *Engine) defaultArchiveFor(ctx context.Context, arch string) (domain.PackageRepository, error) {
	archive, err := e.Store.DefaultArchive(ctx, arch)
	if errors.Is(err, repository.ErrNotFound) {
		url := DefaultMainArchiveURL
		for _, ports := range domain.PortsArches {
			if arch == ports {
				url = DefaultPortsArchiveURL
				break
			}
		}
		return domain.PackageRepository{URL: url}, nil
	}
	if err != nil {
		return domain.PackageRepository{}, fmt.Errorf("failed to resolve default archive for %s: %w", arch, err)
	}
	return archive, nil
}

// ComposeSwapConfig emits the swap directive. A configured swap size
// wins; otherwise an existing swap filesystem on any device or partition
// suppresses the installer's own swap-file heuristic with an explicit
// zero size; otherwise nothing is emitted and the installer default
// applies.
func (e *Engine) ComposeSwapConfig(ctx context.Context, m *domain.Machine) ([]string, error) {
	if m.SwapSize != nil {
		return []string{fmt.Sprintf("swap: {size: %dB}\n", *m.SwapSize)}, nil
	}
	hasSwap, err := e.Store.HasSwapFilesystem(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for swap filesystems: %w", err)
	}
	if hasSwap {
		return []string{"swap: {size: 0B}\n"}, nil
	}
	return nil, nil
}

// ComposeKernelConfig emits the kernel package directive for machines
// pinned to a hardware-enablement kernel. The mapping key is reserved
// for per-arch overrides and stays empty.
func (e *Engine) ComposeKernelConfig(ctx context.Context, m *domain.Machine) ([]string, error) {
	if m.HWEKernel == "" {
		return nil, nil
	}
	pkg, err := e.Kernel.KernelPackage(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve kernel package: %w", err)
	}
	fragment := "kernel:\n" +
		"  mapping: {}\n" +
		fmt.Sprintf("  package: %s\n", pkg)
	return []string{fragment}, nil
}

// ComposeVerboseConfig emits maximum install verbosity with stack traces
// when the operator flag is set, nothing otherwise.
func (e *Engine) ComposeVerboseConfig(ctx context.Context) ([]string, error) {
	cfg, err := e.Store.ConfigSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot config: %w", err)
	}
	if !cfg.CurtinVerbose {
		return nil, nil
	}
	return marshalFragment(map[string]any{
		"verbosity": 3,
		"showtrace": true,
	})
}

// MAASReporter builds the completion-reporting block. The webhook shape
// is used when the target curtin supports event reporting, the legacy
// reporter shape otherwise; the credential is the machine's one-time
// token.
func (e *Engine) MAASReporter(ctx context.Context, m *domain.Machine, webhookEvents bool) (map[string]any, error) {
	token, err := e.Store.TokenForMachine(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mint machine credential: %w", err)
	}
	base := e.BaseURLFor(m)
	if webhookEvents {
		return map[string]any{
			"reporting": map[string]any{
				"maas": map[string]any{
					"endpoint":     base + "/metadata/status/" + m.SystemID,
					"type":         "webhook",
					"consumer_key": token.ConsumerKey,
					"token_key":    token.TokenKey,
					"token_secret": token.TokenSecret,
				},
			},
			"install": map[string]any{
				"log_file":   "/tmp/install.log",
				"post_files": []any{"/tmp/install.log"},
			},
		}, nil
	}
	return map[string]any{
		"reporter": map[string]any{
			"maas": map[string]any{
				"url":          base + "/metadata/curtin/latest/?op=signal",
				"consumer_key": token.ConsumerKey,
				"token_key":    token.TokenKey,
				"token_secret": token.TokenSecret,
			},
		},
	}, nil
}

// ComposeReporter emits the completion-reporting fragment; always
// exactly one fragment.
func (e *Engine) ComposeReporter(ctx context.Context, m *domain.Machine) ([]string, error) {
	reporter, err := e.MAASReporter(ctx, m, e.Caps.WebhookEvents)
	if err != nil {
		return nil, err
	}
	return marshalFragment(reporter)
}

// CurtinYAMLConfig collects every install-config fragment in merge
// order: archive, swap, kernel, verbosity, storage (primary OS only),
// network, install source, reporter. The order is significant for
// override semantics and must not change.
func (e *Engine) CurtinYAMLConfig(ctx context.Context, m *domain.Machine) ([]string, error) {
	var fragments []string

	archive, err := e.ComposeArchiveConfig(ctx, m)
	if err != nil {
		return nil, err
	}
	fragments = append(fragments, archive...)

	swap, err := e.ComposeSwapConfig(ctx, m)
	if err != nil {
		return nil, err
	}
	fragments = append(fragments, swap...)

	kernel, err := e.ComposeKernelConfig(ctx, m)
	if err != nil {
		return nil, err
	}
	fragments = append(fragments, kernel...)

	verbose, err := e.ComposeVerboseConfig(ctx)
	if err != nil {
		return nil, err
	}
	fragments = append(fragments, verbose...)

	if m.OSystem == domain.DefaultOSystem && e.Caps.CustomStorage {
		storage, err := e.Storage.Compose(ctx, m)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, storage...)
	}

	network, err := e.Network.Compose(ctx, m)
	if err != nil {
		return nil, err
	}
	fragments = append(fragments, network...)

	installerURL, err := e.CurtinInstallerURL(ctx, m)
	if err != nil {
		return nil, err
	}
	source, err := marshalFragment(map[string]any{
		"sources": map[string]any{"01_install": installerURL},
	})
	if err != nil {
		return nil, err
	}
	fragments = append(fragments, source...)

	reporter, err := e.ComposeReporter(ctx, m)
	if err != nil {
		return nil, err
	}
	fragments = append(fragments, reporter...)

	return fragments, nil
}

// GetCurtinMergedConfig deep-merges every fragment into one document.
func (e *Engine) GetCurtinMergedConfig(ctx context.Context, m *domain.Machine) (map[string]any, error) {
	fragments, err := e.CurtinYAMLConfig(ctx, m)
	if err != nil {
		return nil, err
	}
	return MergeFragments(fragments)
}

// GetCurtinConfig renders the curtin_userdata template family for the
// machine: the base install commands, reboot mode and debconf
// selections.
func (e *Engine) GetCurtinConfig(ctx context.Context, m *domain.Machine) (string, error) {
	template, err := e.Loader.Load(m, "curtin_userdata", m.OSystem, m.DistroSeries)
	if err != nil {
		return "", err
	}
	tctx, err := e.GlobalContext(ctx, m.OSystem, m.DistroSeries, e.BaseURLFor(m))
	if err != nil {
		return "", err
	}
	nodeCtx, err := e.NodeContext(ctx, m, TypeCurtin)
	if err != nil {
		return "", err
	}
	for key, value := range nodeCtx {
		tctx[key] = value
	}
	return e.Loader.Render(template, m, m.OSystem, m.DistroSeries, tctx)
}

// GetCurtinUserData merges the rendered curtin_userdata template with
// every composed fragment into the final install configuration document.
func (e *Engine) GetCurtinUserData(ctx context.Context, m *domain.Machine) (string, error) {
	base, err := e.GetCurtinConfig(ctx, m)
	if err != nil {
		return "", err
	}
	fragments, err := e.CurtinYAMLConfig(ctx, m)
	if err != nil {
		return "", err
	}
	merged, err := MergeFragments(append([]string{base}, fragments...))
	if err != nil {
		return "", err
	}
	out, err := yaml.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("failed to serialize curtin userdata: %w", err)
	}
	return string(out), nil
}

// marshalFragment serializes one document as a single-element fragment
// list.
func marshalFragment(doc map[string]any) ([]string, error) {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize fragment: %w", err)
	}
	return []string{string(out)}, nil
}
