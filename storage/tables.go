package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskboard/domain"
)

const (
	boardPartition = "board"
	listPartition  = "list"
	cardPartition  = "card"

	edmDouble = "Edm.Double"

	// maxBatch is the entity limit of one table transaction.
	maxBatch = 100
)

// TableNames names the Azure tables backing a Tables gateway.
type TableNames struct {
	Boards     string
	Lists      string
	Cards      string
	Comments   string
	Activities string
}

// Tables is the Azure Table Storage persistence gateway. Boards, lists and
// cards each live in a single partition so respacing can use entity batches.
// Comments are partitioned by card and activities by board, with reverse
// chronological row keys.
type Tables struct {
	boards     *aztables.Client
	lists      *aztables.Client
	cards      *aztables.Client
	comments   *aztables.Client
	activities *aztables.Client
}

// NewTables creates a Tables gateway from a storage connection string.
func NewTables(connStr string, names TableNames) (*Tables, error) {
	opts := tableClientOptions()
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return newTables(svc, names), nil
}

func tableClientOptions() aztables.ClientOptions {
	return aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
}

func newTables(svc *aztables.ServiceClient, names TableNames) *Tables {
	return &Tables{
		boards:     svc.NewClient(names.Boards),
		lists:      svc.NewClient(names.Lists),
		cards:      svc.NewClient(names.Cards),
		comments:   svc.NewClient(names.Comments),
		activities: svc.NewClient(names.Activities),
	}
}

type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type boardEntity struct {
	entity
	WorkspaceID string `json:"WorkspaceId"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	OwnerID     string `json:"OwnerId"`
	Visibility  string `json:"Visibility"`
	Background  string `json:"Background"`
	Closed      bool   `json:"Closed"`
	// Members is a JSON document; tables have no nested properties.
	Members   string `json:"Members"`
	CreatedAt string `json:"CreatedAt"`
	UpdatedAt string `json:"UpdatedAt"`
}

type listEntity struct {
	entity
	BoardID      string  `json:"BoardId"`
	Title        string  `json:"Title"`
	Position     float64 `json:"Position"`
	PositionType string  `json:"Position@odata.type"`
	Archived     bool    `json:"Archived"`
	CreatedAt    string  `json:"CreatedAt"`
	UpdatedAt    string  `json:"UpdatedAt"`
}

type cardEntity struct {
	entity
	ListID       string  `json:"ListId"`
	BoardID      string  `json:"BoardId"`
	Title        string  `json:"Title"`
	Description  string  `json:"Description"`
	Position     float64 `json:"Position"`
	PositionType string  `json:"Position@odata.type"`
	DueDate      string  `json:"DueDate,omitempty"`
	Completed    bool    `json:"Completed"`
	CompletedAt  string  `json:"CompletedAt,omitempty"`
	Labels       string  `json:"Labels"`
	Assignees    string  `json:"Assignees"`
	CreatorID    string  `json:"CreatorId"`
	Archived     bool    `json:"Archived"`
	CreatedAt    string  `json:"CreatedAt"`
	UpdatedAt    string  `json:"UpdatedAt"`
}

// positionUpdate is merged into list and card entities.
type positionUpdate struct {
	entity
	ListID       string  `json:"ListId,omitempty"`
	Position     float64 `json:"Position"`
	PositionType string  `json:"Position@odata.type"`
	UpdatedAt    string  `json:"UpdatedAt"`
}

type archiveUpdate struct {
	entity
	Archived  bool   `json:"Archived"`
	UpdatedAt string `json:"UpdatedAt"`
}

type commentEntity struct {
	entity
	CommentID  string `json:"CommentId"`
	BoardID    string `json:"BoardId"`
	AuthorID   string `json:"AuthorId"`
	AuthorName string `json:"AuthorName"`
	Text       string `json:"Text"`
	CreatedAt  string `json:"CreatedAt"`
}

type activityEntity struct {
	entity
	ActivityID  string `json:"ActivityId"`
	UserID      string `json:"UserId"`
	UserName    string `json:"UserName"`
	Type        string `json:"Type"`
	Description string `json:"Description"`
	ListID      string `json:"ListId"`
	CardID      string `json:"CardId"`
	CommentID   string `json:"CommentId"`
	CreatedAt   string `json:"CreatedAt"`
}

func toBoardEntity(b domain.Board) (boardEntity, error) {
	members, err := json.Marshal(b.Members)
	if err != nil {
		return boardEntity{}, err
	}
	return boardEntity{
		entity:      entity{PartitionKey: boardPartition, RowKey: b.ID},
		WorkspaceID: b.WorkspaceID,
		Title:       b.Title,
		Description: b.Description,
		OwnerID:     b.OwnerID,
		Visibility:  string(b.Visibility),
		Background:  b.Background,
		Closed:      b.Closed,
		Members:     string(members),
		CreatedAt:   ts(b.CreatedAt),
		UpdatedAt:   ts(b.UpdatedAt),
	}, nil
}

func decodeBoardEntity(data []byte) (domain.Board, error) {
	var e boardEntity
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.Board{}, err
	}
	b := domain.Board{
		ID:          e.RowKey,
		WorkspaceID: e.WorkspaceID,
		Title:       e.Title,
		Description: e.Description,
		OwnerID:     e.OwnerID,
		Visibility:  domain.Visibility(e.Visibility),
		Background:  e.Background,
		Closed:      e.Closed,
		Members:     []domain.Member{},
		CreatedAt:   parseTS(e.CreatedAt),
		UpdatedAt:   parseTS(e.UpdatedAt),
	}
	if e.Members != "" {
		if err := json.Unmarshal([]byte(e.Members), &b.Members); err != nil {
			return domain.Board{}, fmt.Errorf("decode board members: %w", err)
		}
	}
	return b, nil
}

func toListEntity(l domain.List) listEntity {
	return listEntity{
		entity:       entity{PartitionKey: listPartition, RowKey: l.ID},
		BoardID:      l.BoardID,
		Title:        l.Title,
		Position:     l.Position,
		PositionType: edmDouble,
		Archived:     l.Archived,
		CreatedAt:    ts(l.CreatedAt),
		UpdatedAt:    ts(l.UpdatedAt),
	}
}

func decodeListEntity(data []byte) (domain.List, error) {
	var e listEntity
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.List{}, err
	}
	return domain.List{
		ID:        e.RowKey,
		BoardID:   e.BoardID,
		Title:     e.Title,
		Position:  e.Position,
		Archived:  e.Archived,
		CreatedAt: parseTS(e.CreatedAt),
		UpdatedAt: parseTS(e.UpdatedAt),
	}, nil
}

func toCardEntity(c domain.Card) cardEntity {
	e := cardEntity{
		entity:       entity{PartitionKey: cardPartition, RowKey: c.ID},
		ListID:       c.ListID,
		BoardID:      c.BoardID,
		Title:        c.Title,
		Description:  c.Description,
		Position:     c.Position,
		PositionType: edmDouble,
		Completed:    c.Completed,
		Labels:       tagsJSON(c.Labels),
		Assignees:    tagsJSON(c.Assignees),
		CreatorID:    c.CreatorID,
		Archived:     c.Archived,
		CreatedAt:    ts(c.CreatedAt),
		UpdatedAt:    ts(c.UpdatedAt),
	}
	if c.DueDate != nil {
		e.DueDate = ts(*c.DueDate)
	}
	if c.CompletedAt != nil {
		e.CompletedAt = ts(*c.CompletedAt)
	}
	return e
}

func decodeCardEntity(data []byte) (domain.Card, error) {
	var e cardEntity
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.Card{}, err
	}
	c := domain.Card{
		ID:          e.RowKey,
		ListID:      e.ListID,
		BoardID:     e.BoardID,
		Title:       e.Title,
		Description: e.Description,
		Position:    e.Position,
		Completed:   e.Completed,
		Labels:      parseTags(e.Labels),
		Assignees:   parseTags(e.Assignees),
		CreatorID:   e.CreatorID,
		Archived:    e.Archived,
		CreatedAt:   parseTS(e.CreatedAt),
		UpdatedAt:   parseTS(e.UpdatedAt),
	}
	if e.DueDate != "" {
		t := parseTS(e.DueDate)
		c.DueDate = &t
	}
	if e.CompletedAt != "" {
		t := parseTS(e.CompletedAt)
		c.CompletedAt = &t
	}
	return c, nil
}

// reverseKey sorts newer timestamps first in a row key.
func reverseKey(t time.Time, id string) string {
	return fmt.Sprintf("%019d_%s", math.MaxInt64-t.UnixNano(), id)
}

// odataString quotes v as an OData string literal.
func odataString(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

func translate(err error, kind, id string) error {
	if isNotFound(err) {
		return domain.NotFoundError(kind, id)
	}
	return err
}

func mergeAny(ctx context.Context, c *aztables.Client, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = c.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return err
}

func replaceAny(ctx context.Context, c *aztables.Client, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = c.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return err
}

func addEntity(ctx context.Context, c *aztables.Client, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.AddEntity(ctx, payload, nil)
	return err
}

// each pages through the entities matching filter.
func each(ctx context.Context, c *aztables.Client, filter string, fn func([]byte) (bool, error)) error {
	opts := &aztables.ListEntitiesOptions{}
	if filter != "" {
		opts.Filter = &filter
	}
	pager := c.NewListEntitiesPager(opts)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range resp.Entities {
			more, err := fn(raw)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
	}
	return nil
}

// submitBatches merges the given entities in transactions of at most maxBatch.
func submitBatches(ctx context.Context, c *aztables.Client, entities []any) error {
	for start := 0; start < len(entities); start += maxBatch {
		end := min(start+maxBatch, len(entities))
		actions := make([]aztables.TransactionAction, 0, end-start)
		for _, e := range entities[start:end] {
			payload, err := json.Marshal(e)
			if err != nil {
				return err
			}
			et := azcore.ETagAny
			actions = append(actions, aztables.TransactionAction{
				ActionType: aztables.TransactionTypeUpdateMerge,
				Entity:     payload,
				IfMatch:    &et,
			})
		}
		if _, err := c.SubmitTransaction(ctx, actions, nil); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tables) CreateBoard(ctx context.Context, b domain.Board, lists []domain.List) error {
	be, err := toBoardEntity(b)
	if err != nil {
		return err
	}
	if err := addEntity(ctx, t.boards, be); err != nil {
		return err
	}
	for _, l := range lists {
		if err := addEntity(ctx, t.lists, toListEntity(l)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tables) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	resp, err := t.boards.GetEntity(ctx, boardPartition, id, nil)
	if err != nil {
		return domain.Board{}, translate(err, "board", id)
	}
	return decodeBoardEntity(resp.Value)
}

func (t *Tables) ListBoards(ctx context.Context, userID string) ([]domain.Board, error) {
	out := []domain.Board{}
	filter := "PartitionKey eq " + odataString(boardPartition) + " and Closed eq false"
	err := each(ctx, t.boards, filter, func(raw []byte) (bool, error) {
		b, err := decodeBoardEntity(raw)
		if err != nil {
			return false, err
		}
		if domain.CanWrite(b, userID) {
			out = append(out, b)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (t *Tables) SetMembers(ctx context.Context, boardID string, members []domain.Member) error {
	raw, err := json.Marshal(members)
	if err != nil {
		return err
	}
	upd := struct {
		entity
		Members   string `json:"Members"`
		UpdatedAt string `json:"UpdatedAt"`
	}{
		entity:    entity{PartitionKey: boardPartition, RowKey: boardID},
		Members:   string(raw),
		UpdatedAt: ts(time.Now()),
	}
	return translate(mergeAny(ctx, t.boards, upd), "board", boardID)
}

func (t *Tables) CreateList(ctx context.Context, l domain.List) error {
	return addEntity(ctx, t.lists, toListEntity(l))
}

func (t *Tables) GetList(ctx context.Context, id string) (domain.List, error) {
	resp, err := t.lists.GetEntity(ctx, listPartition, id, nil)
	if err != nil {
		return domain.List{}, translate(err, "list", id)
	}
	return decodeListEntity(resp.Value)
}

func (t *Tables) ListLists(ctx context.Context, boardID string) ([]domain.List, error) {
	out := []domain.List{}
	filter := "PartitionKey eq " + odataString(listPartition) + " and BoardId eq " + odataString(boardID) + " and Archived eq false"
	err := each(ctx, t.lists, filter, func(raw []byte) (bool, error) {
		l, err := decodeListEntity(raw)
		if err != nil {
			return false, err
		}
		out = append(out, l)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (t *Tables) UpdateList(ctx context.Context, l domain.List) error {
	return translate(replaceAny(ctx, t.lists, toListEntity(l)), "list", l.ID)
}

func (t *Tables) MoveList(ctx context.Context, id string, position float64) (domain.List, error) {
	upd := positionUpdate{
		entity:       entity{PartitionKey: listPartition, RowKey: id},
		Position:     position,
		PositionType: edmDouble,
		UpdatedAt:    ts(time.Now()),
	}
	if err := mergeAny(ctx, t.lists, upd); err != nil {
		return domain.List{}, translate(err, "list", id)
	}
	return t.GetList(ctx, id)
}

func (t *Tables) RespaceLists(ctx context.Context, boardID string, positions map[string]float64) error {
	return submitBatches(ctx, t.lists, positionUpdates(listPartition, positions))
}

func positionUpdates(partition string, positions map[string]float64) []any {
	now := ts(time.Now())
	ids := make([]string, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, positionUpdate{
			entity:       entity{PartitionKey: partition, RowKey: id},
			Position:     positions[id],
			PositionType: edmDouble,
			UpdatedAt:    now,
		})
	}
	return out
}

func (t *Tables) ArchiveList(ctx context.Context, id string) (domain.List, error) {
	now := ts(time.Now())
	if err := mergeAny(ctx, t.lists, archiveUpdate{
		entity:    entity{PartitionKey: listPartition, RowKey: id},
		Archived:  true,
		UpdatedAt: now,
	}); err != nil {
		return domain.List{}, translate(err, "list", id)
	}
	var updates []any
	filter := "PartitionKey eq " + odataString(cardPartition) + " and ListId eq " + odataString(id) + " and Archived eq false"
	err := each(ctx, t.cards, filter, func(raw []byte) (bool, error) {
		var e entity
		if err := json.Unmarshal(raw, &e); err != nil {
			return false, err
		}
		updates = append(updates, archiveUpdate{entity: e, Archived: true, UpdatedAt: now})
		return true, nil
	})
	if err != nil {
		return domain.List{}, err
	}
	if err := submitBatches(ctx, t.cards, updates); err != nil {
		return domain.List{}, err
	}
	return t.GetList(ctx, id)
}

func (t *Tables) DeleteList(ctx context.Context, id string) error {
	if _, err := t.lists.GetEntity(ctx, listPartition, id, nil); err != nil {
		return translate(err, "list", id)
	}
	_, err := t.lists.DeleteEntity(ctx, listPartition, id, nil)
	return translate(err, "list", id)
}

func (t *Tables) CreateCard(ctx context.Context, c domain.Card) error {
	return addEntity(ctx, t.cards, toCardEntity(c))
}

func (t *Tables) GetCard(ctx context.Context, id string) (domain.Card, error) {
	resp, err := t.cards.GetEntity(ctx, cardPartition, id, nil)
	if err != nil {
		return domain.Card{}, translate(err, "card", id)
	}
	return decodeCardEntity(resp.Value)
}

func (t *Tables) queryCards(ctx context.Context, filter string) ([]domain.Card, error) {
	out := []domain.Card{}
	err := each(ctx, t.cards, filter, func(raw []byte) (bool, error) {
		c, err := decodeCardEntity(raw)
		if err != nil {
			return false, err
		}
		out = append(out, c)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ListID != out[j].ListID {
			return out[i].ListID < out[j].ListID
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (t *Tables) ListCards(ctx context.Context, listID string) ([]domain.Card, error) {
	return t.queryCards(ctx, "PartitionKey eq "+odataString(cardPartition)+" and ListId eq "+odataString(listID)+" and Archived eq false")
}

func (t *Tables) ListBoardCards(ctx context.Context, boardID string) ([]domain.Card, error) {
	return t.queryCards(ctx, "PartitionKey eq "+odataString(cardPartition)+" and BoardId eq "+odataString(boardID)+" and Archived eq false")
}

func (t *Tables) CountCards(ctx context.Context, listID string) (int, error) {
	n := 0
	filter := "PartitionKey eq " + odataString(cardPartition) + " and ListId eq " + odataString(listID)
	err := each(ctx, t.cards, filter, func([]byte) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

func (t *Tables) UpdateCard(ctx context.Context, c domain.Card) error {
	return translate(replaceAny(ctx, t.cards, toCardEntity(c)), "card", c.ID)
}

// MoveCard merges ListId and Position into the card entity in one request;
// a single-entity write is atomic in Table Storage.
func (t *Tables) MoveCard(ctx context.Context, id, listID string, position float64) (domain.Card, error) {
	upd := positionUpdate{
		entity:       entity{PartitionKey: cardPartition, RowKey: id},
		ListID:       listID,
		Position:     position,
		PositionType: edmDouble,
		UpdatedAt:    ts(time.Now()),
	}
	if err := mergeAny(ctx, t.cards, upd); err != nil {
		return domain.Card{}, translate(err, "card", id)
	}
	return t.GetCard(ctx, id)
}

func (t *Tables) RespaceCards(ctx context.Context, listID string, positions map[string]float64) error {
	return submitBatches(ctx, t.cards, positionUpdates(cardPartition, positions))
}

func (t *Tables) DeleteCard(ctx context.Context, id string) error {
	_, err := t.cards.DeleteEntity(ctx, cardPartition, id, nil)
	return translate(err, "card", id)
}

func (t *Tables) CreateComment(ctx context.Context, c domain.Comment) error {
	return addEntity(ctx, t.comments, commentEntity{
		entity:     entity{PartitionKey: c.CardID, RowKey: reverseKey(c.CreatedAt, c.ID)},
		CommentID:  c.ID,
		BoardID:    c.BoardID,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		Text:       c.Text,
		CreatedAt:  ts(c.CreatedAt),
	})
}

func (t *Tables) ListComments(ctx context.Context, cardID string) ([]domain.Comment, error) {
	out := []domain.Comment{}
	err := each(ctx, t.comments, "PartitionKey eq "+odataString(cardID), func(raw []byte) (bool, error) {
		var e commentEntity
		if err := json.Unmarshal(raw, &e); err != nil {
			return false, err
		}
		out = append(out, domain.Comment{
			ID:         e.CommentID,
			CardID:     e.PartitionKey,
			BoardID:    e.BoardID,
			AuthorID:   e.AuthorID,
			AuthorName: e.AuthorName,
			Text:       e.Text,
			CreatedAt:  parseTS(e.CreatedAt),
		})
		return true, nil
	})
	return out, err
}

func (t *Tables) AppendActivity(ctx context.Context, a domain.Activity) error {
	return addEntity(ctx, t.activities, activityEntity{
		entity:      entity{PartitionKey: a.BoardID, RowKey: reverseKey(a.CreatedAt, a.ID)},
		ActivityID:  a.ID,
		UserID:      a.UserID,
		UserName:    a.UserName,
		Type:        string(a.Type),
		Description: a.Description,
		ListID:      a.ListID,
		CardID:      a.CardID,
		CommentID:   a.CommentID,
		CreatedAt:   ts(a.CreatedAt),
	})
}

// activityFilter builds the OData filter for a board's activity page.
func activityFilter(boardID string, q domain.ActivityQuery) string {
	filter := "PartitionKey eq " + odataString(boardID)
	if q.CardID != "" {
		filter += " and CardId eq " + odataString(q.CardID)
	}
	if len(q.Types) == 0 {
		return filter
	}
	parts := make([]string, len(q.Types))
	for i, t := range q.Types {
		parts[i] = "Type eq " + odataString(string(t))
	}
	return filter + " and (" + strings.Join(parts, " or ") + ")"
}

func (t *Tables) ListActivities(ctx context.Context, boardID string, q domain.ActivityQuery) ([]domain.Activity, error) {
	out := []domain.Activity{}
	skip := q.Offset()
	err := each(ctx, t.activities, activityFilter(boardID, q), func(raw []byte) (bool, error) {
		if skip > 0 {
			skip--
			return true, nil
		}
		var e activityEntity
		if err := json.Unmarshal(raw, &e); err != nil {
			return false, err
		}
		out = append(out, domain.Activity{
			ID:          e.ActivityID,
			BoardID:     e.PartitionKey,
			UserID:      e.UserID,
			UserName:    e.UserName,
			Type:        domain.ActivityType(e.Type),
			Description: e.Description,
			ListID:      e.ListID,
			CardID:      e.CardID,
			CommentID:   e.CommentID,
			CreatedAt:   parseTS(e.CreatedAt),
		})
		return len(out) < q.Limit, nil
	})
	return out, err
}
