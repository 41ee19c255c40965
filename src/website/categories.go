package website

import (
	"errors"
	"net/http"

	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/tkdata"
)

func Categories(c *RequestContext) ResponseData {
	categories, err := tkdata.FetchCategories(c, c.Deps.Conn)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}
	return JsonResponse(http.StatusOK, CategoriesToJson(categories), c.Perf)
}

type CategoryDetailResponse struct {
	Category   *Category   `json:"category"`
	Categories []*Category `json:"categories"`
	Ideas      []Idea      `json:"ideas"`
}

// One category's ideas, clearest first. The full category list comes along
// so the page can offer the other categories.
func CategoryDetail(c *RequestContext) ResponseData {
	category, err := tkdata.FetchCategoryBySlug(c, c.Deps.Conn, c.PathParams["slug"])
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return c.ErrorResponse(http.StatusNotFound, NewSafeError(err, "Category not found"))
		}
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}

	categories, err := tkdata.FetchCategories(c, c.Deps.Conn)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}

	ideas, err := tkdata.FetchIdeasByCategory(c, c.Deps.Conn, category.ID)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}

	res := CategoryDetailResponse{
		Category:   CategoryToJson(category),
		Categories: CategoriesToJson(categories),
		Ideas:      make([]Idea, 0, len(ideas)),
	}
	for _, idea := range ideas {
		res.Ideas = append(res.Ideas, IdeaAndDigestToJson(idea))
	}
	return JsonResponse(http.StatusOK, res, c.Perf)
}
