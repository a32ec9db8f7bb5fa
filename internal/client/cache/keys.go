package cache

import (
	"fmt"
	"strconv"
	"time"
)

// Every item query lives under ItemsPrefix so one prefix invalidation can
// reach all of them.
const (
	ItemsPrefix  = "items:"
	SearchPrefix = ItemsPrefix + "search:"

	KeyOpenItems   Key = ItemsPrefix + "open"
	KeyClosedItems Key = ItemsPrefix + "closed"
	KeyLabels      Key = "labels"
)

// ItemKey identifies the detail query of one item.
func ItemKey(id int64) Key {
	return Key(ItemsPrefix + "#" + strconv.FormatInt(id, 10))
}

// SearchKey identifies one search.
func SearchKey(query string, includeClosed bool, label string) Key {
	return Key(fmt.Sprintf("%s%s,%t,%s", SearchPrefix, query, includeClosed, label))
}

// Stale times per query kind.
const (
	OpenStaleTime   = 30 * time.Second
	ClosedStaleTime = 60 * time.Second
	SearchStaleTime = 30 * time.Second
	LabelsStaleTime = 5 * time.Minute
	ItemStaleTime   = 0
)
