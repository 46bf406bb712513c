package core

import (
	"sync"
)

// ViewState is the table view's filters, sort and page window.
// It is a value: every With method returns a new state.
type ViewState struct {
	Criteria FilterCriteria `json:"criteria"`
	Sort     SortSpec       `json:"sort"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// DefaultViewState has no filters, sorts by code ascending and shows page 1.
func DefaultViewState() ViewState {
	return ViewState{Sort: DefaultSort, Page: 1, PageSize: DefaultPageSize}
}

// WithCriteria replaces the filters and returns to page 1.
func (s ViewState) WithCriteria(c FilterCriteria) ViewState {
	s.Criteria = c
	s.Page = 1
	return s
}

// WithSort replaces the sort and returns to page 1.
func (s ViewState) WithSort(spec SortSpec) ViewState {
	s.Sort = spec
	s.Page = 1
	return s
}

// WithPage moves to page. The controller clamps it on the next run.
func (s ViewState) WithPage(page int) ViewState {
	s.Page = page
	return s
}

// WithPageSize changes the page size and returns to page 1.
func (s ViewState) WithPageSize(size int) ViewState {
	s.PageSize = size
	s.Page = 1
	return s
}

// View is the table view derived from the working set and a ViewState.
type View struct {
	Items []StudentRecord `json:"items"`
	Meta  PageMeta        `json:"meta"`
	// State is the input state with its page clamped.
	State ViewState `json:"state"`
}

// Controller derives views from a Store. It keeps no per-request state; the
// analytics summary is memoized per working-set version.
type Controller struct {
	store *Store
	agg   *Aggregator

	mu         sync.Mutex
	summary    Summary
	summaryVer uint64
}

// NewController returns a Controller over store. A nil agg uses the
// default Aggregator.
func NewController(store *Store, agg *Aggregator) *Controller {
	if agg == nil {
		agg = NewAggregator()
	}
	return &Controller{store: store, agg: agg}
}

// Run filters, sorts and paginates the current working set.
func (c *Controller) Run(state ViewState) View {
	page := Paginate(c.Matching(state), state.Page, state.PageSize)
	state.Page = page.Meta.Page
	state.PageSize = page.Meta.PageSize
	return View{Items: page.Items, Meta: page.Meta, State: state}
}

// Matching returns every record that passes the state's filters, in sort
// order, without pagination.
func (c *Controller) Matching(state ViewState) []StudentRecord {
	return Sort(Filter(c.store.All(), state.Criteria), state.Sort)
}

// Analytics summarizes the full unfiltered working set.
func (c *Controller) Analytics() Summary {
	snap := c.store.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summaryVer != 0 && c.summaryVer == snap.Version {
		return c.summary
	}
	c.summary = c.agg.Summarize(snap.Records)
	c.summaryVer = snap.Version
	return c.summary
}
