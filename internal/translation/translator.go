// Package translation caches backend translations per role and language
// as the nested namespace tree the dashboard consumes.
package translation

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"fleet-dashboard/internal/backend"
	applog "fleet-dashboard/internal/logger"
	"fleet-dashboard/internal/models"
)

const defaultNamespace = "translation"

// Remote is the backend side of translations.
type Remote interface {
	ListTranslations(ctx context.Context, role models.UserRole, ts backend.TokenSource, lang string) ([]backend.Translation, error)
	ListLanguages(ctx context.Context, role models.UserRole, ts backend.TokenSource) ([]string, error)
}

// Tree maps namespace -> nested keys -> translated string.
type Tree map[string]any

type Translator struct {
	remote Remote
	cache  *cache.Cache
	logger *zap.Logger
}

func New(remote Remote, ttl time.Duration, logger *zap.Logger) *Translator {
	logger = applog.OrNop(logger)
	return &Translator{
		remote: remote,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

func treeKey(role models.UserRole, lang string) string {
	return string(role) + "/" + lang
}

func languagesKey(role models.UserRole) string {
	return string(role) + "/#languages"
}

// Load returns the translation tree of lang. Without a token (login
// pages) nothing is fetched and an empty tree is returned.
func (t *Translator) Load(ctx context.Context, role models.UserRole, lang string, ts backend.TokenSource) (Tree, error) {
	key := treeKey(role, lang)
	if v, ok := t.cache.Get(key); ok {
		return v.(Tree), nil
	}
	if ts == nil || ts.Token() == "" {
		return Tree{}, nil
	}

	list, err := t.remote.ListTranslations(ctx, role, ts, lang)
	if err != nil {
		return nil, err
	}
	tree := Build(list)
	t.cache.SetDefault(key, tree)
	t.logger.Debug("translations loaded",
		zap.String("role", string(role)),
		zap.String("lang", lang),
		zap.Int("keys", len(list)))
	return tree, nil
}

func (t *Translator) Languages(ctx context.Context, role models.UserRole, ts backend.TokenSource) ([]string, error) {
	key := languagesKey(role)
	if v, ok := t.cache.Get(key); ok {
		return v.([]string), nil
	}
	if ts == nil || ts.Token() == "" {
		return nil, backend.ErrNoToken
	}
	langs, err := t.remote.ListLanguages(ctx, role, ts)
	if err != nil {
		return nil, err
	}
	t.cache.SetDefault(key, langs)
	return langs, nil
}

// Invalidate drops the cached tree of lang for every role.
func (t *Translator) Invalidate(lang string) {
	for _, role := range []models.UserRole{models.RoleUser, models.RoleManager} {
		t.cache.Delete(treeKey(role, lang))
	}
}

// Close drops everything; a closed Translator refetches on next use.
func (t *Translator) Close() {
	t.cache.Flush()
}

// Build turns flat "namespace.a.b" keys into a nested tree. A key without
// a namespace segment lands in the default namespace; a key with only a
// namespace sets the namespace itself.
func Build(list []backend.Translation) Tree {
	tree := Tree{}
	for _, tr := range list {
		ns, rest, _ := strings.Cut(tr.Key, ".")
		if ns == "" {
			ns = defaultNamespace
		}
		if rest == "" {
			tree[ns] = tr.Val
			continue
		}

		level, ok := tree[ns].(map[string]any)
		if !ok {
			level = map[string]any{}
			tree[ns] = level
		}
		parts := strings.Split(rest, ".")
		for i, part := range parts {
			if i == len(parts)-1 {
				level[part] = tr.Val
				break
			}
			next, ok := level[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				level[part] = next
			}
			level = next
		}
	}
	return tree
}
