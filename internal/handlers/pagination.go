package handlers

import (
	"errors"
	"strconv"

	"marketplace/internal/orders"
)

var errInvalidPagination = errors.New("page must be a positive integer and limit between 1 and 100")

func parsePaginationParams(pageStr, limitStr string) (int64, int64, error) {
	page := int64(1)
	limit := orders.DefaultPageLimit

	if pageStr != "" {
		p, err := strconv.ParseInt(pageStr, 10, 64)
		if err != nil || p < 1 || p > orders.MaxPage {
			return 0, 0, errInvalidPagination
		}
		page = p
	}

	if limitStr != "" {
		l, err := strconv.ParseInt(limitStr, 10, 64)
		if err != nil || l < 1 || l > orders.MaxPageLimit {
			return 0, 0, errInvalidPagination
		}
		limit = l
	}

	return page, limit, nil
}
