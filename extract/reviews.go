package extract

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aluiziolira/go-scrape-goodreads/dom"
	"github.com/aluiziolira/go-scrape-goodreads/models"
	"github.com/aluiziolira/go-scrape-goodreads/parser"
)

// ReviewCardSelectors locate review cards, newest layout first.
var ReviewCardSelectors = []string{"article.ReviewCard, div.ReviewCard", ".ReviewCard"}

// ReviewExtractor pulls review records out of a book page.
type ReviewExtractor struct {
	// MaxReviews caps the number of records per book. Zero means no cap.
	MaxReviews int
}

// Extract returns the reviews of the page in document order. A card that
// fails to extract is logged and skipped; the others are still returned.
// Every returned review id is unique within the call.
func (x ReviewExtractor) Extract(n dom.Node, bookID int) []models.Review {
	cards := dom.FirstMatch(n, ReviewCardSelectors)
	if len(cards) == 0 {
		return nil
	}

	reviews := make([]models.Review, 0, len(cards))
	seen := make(map[string]struct{}, len(cards))
	for position, card := range cards {
		if x.MaxReviews > 0 && len(reviews) >= x.MaxReviews {
			break
		}

		review, err := extractCard(card, bookID, position)
		if err != nil {
			slog.Warn("skipping review card",
				slog.Int("book_id", bookID),
				slog.Int("position", position),
				slog.Any("error", err),
			)
			continue
		}

		review.ReviewID = uniqueID(review.ReviewID, bookID, position, seen)
		seen[review.ReviewID] = struct{}{}
		reviews = append(reviews, review)
	}
	return reviews
}

// SyntheticReviewID is the id of a card without a native id attribute.
func SyntheticReviewID(bookID, position int) string {
	return "review_" + strconv.Itoa(bookID) + "_" + strconv.Itoa(position)
}

func extractCard(card dom.Node, bookID, position int) (review models.Review, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("review card %d: %v", position, r)
		}
	}()

	text := ReviewTextField.Extract(card)
	if text == nil {
		raw, textErr := card.Text()
		if textErr != nil {
			return models.Review{}, fmt.Errorf("review card %d text: %w", position, textErr)
		}
		normalized := parser.NormalizeText(raw)
		text = &normalized
	}

	id, ok := card.Attr("id")
	if !ok || id == "" {
		id = SyntheticReviewID(bookID, position)
	}

	return models.Review{
		ReviewID:   id,
		BookID:     bookID,
		Reviewer:   ReviewerField.Value(card),
		Rating:     parser.ParseRating(RatingLabelField.Value(card)),
		Date:       DateField.Value(card),
		ReviewText: *text,
	}, nil
}

// uniqueID resolves id collisions within one page: a repeated native id
// falls back to the synthetic id, a taken synthetic id gets a suffix.
func uniqueID(id string, bookID, position int, seen map[string]struct{}) string {
	if _, taken := seen[id]; !taken {
		return id
	}
	candidate := SyntheticReviewID(bookID, position)
	for n := 1; ; n++ {
		if _, taken := seen[candidate]; !taken {
			return candidate
		}
		candidate = SyntheticReviewID(bookID, position) + "_" + strconv.Itoa(n)
	}
}
