package usecase

import "DigestAgent/internal/domain"

// Dedup drops later articles whose URL was already seen, keeping input order.
// Articles without a URL are always kept.
func Dedup(articles []domain.Article) []domain.Article {
	seen := make(map[string]struct{}, len(articles))
	out := make([]domain.Article, 0, len(articles))
	for _, article := range articles {
		if article.URL != "" {
			if _, dup := seen[article.URL]; dup {
				continue
			}
			seen[article.URL] = struct{}{}
		}
		out = append(out, article)
	}
	return out
}
