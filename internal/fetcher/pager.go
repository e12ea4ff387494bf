package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"cwstate/internal/lcd"
)

var errRepeatedPageKey = errors.New("remote returned a page key it already returned")

// pager walks the pages of one state query. It is finite and cannot be restarted:
// a new fetch needs a new pager.
type pager struct {
	querier  StateQuerier
	baseURL  string
	contract string
	limit    int
	timeout  time.Duration
	maxPages int

	nextKey []byte
	seen    [][]byte
	index   int
	done    bool
}

// Next returns the next page. ok is false once the last page has been returned.
func (p *pager) Next(ctx context.Context) (page lcd.StatePage, ok bool, err error) {
	if p.done {
		return lcd.StatePage{}, false, nil
	}
	if p.index >= p.maxPages {
		p.done = true
		return lcd.StatePage{}, false, fmt.Errorf("exceeded %d pages", p.maxPages)
	}

	pageCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	page, err = p.querier.ContractState(pageCtx, p.baseURL, p.contract, p.nextKey, p.limit)
	if err != nil {
		p.done = true
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %v", context.DeadlineExceeded, p.timeout, err)
		}
		return lcd.StatePage{}, false, err
	}
	p.index++

	if len(page.NextKey) == 0 {
		p.done = true
		return page, true, nil
	}
	for _, k := range p.seen {
		if bytes.Equal(k, page.NextKey) {
			p.done = true
			return lcd.StatePage{}, false, errRepeatedPageKey
		}
	}
	p.seen = append(p.seen, page.NextKey)
	p.nextKey = page.NextKey
	return page, true, nil
}

// Index is the number of pages returned so far.
func (p *pager) Index() int {
	return p.index
}
