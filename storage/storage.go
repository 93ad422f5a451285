package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/nour-derwich/system-management-pulse-hr/domain"
)

// Boards and tags live under fixed partitions; columns and tasks are
// partitioned by board id so a whole board fits in one transaction scope.
const (
	boardPartition = "board"
	tagPartition   = "tag"
)

// Azure table transactions accept at most 100 actions.
const transactionMaxActions = 100

// Tables names the four tables backing the store.
type Tables struct {
	Boards  string
	Columns string
	Tasks   string
	Tags    string
}

// TableStore persists boards in Azure Table Storage.
type TableStore struct {
	boards  *aztables.Client
	columns *aztables.Client
	tasks   *aztables.Client
	tags    *aztables.Client
}

// New creates a TableStore from the given connection string.
func New(connStr string, tables Tables) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{
		boards:  svc.NewClient(tables.Boards),
		columns: svc.NewClient(tables.Columns),
		tasks:   svc.NewClient(tables.Tasks),
		tags:    svc.NewClient(tables.Tags),
	}, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

// isPreconditionFailed covers stale-ETag rejections, both standalone (412)
// and inside a transaction response.
func isPreconditionFailed(err error) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	return respErr.StatusCode == 412 || respErr.ErrorCode == "UpdateConditionNotSatisfied"
}

// odataString renders a value as an OData string literal. Board ids come from
// clients, so embedded quotes must be doubled or they terminate the filter.
func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type boardEntity struct {
	aztables.Entity
	ETagRaw      string `json:"odata.etag,omitempty"`
	Name         string `json:"Name"`
	Description  string `json:"Description"`
	DepartmentID string `json:"DepartmentId"`
	CreatedBy    string `json:"CreatedBy"`
	Members      string `json:"Members"`
}

type columnEntity struct {
	aztables.Entity
	ETagRaw string `json:"odata.etag,omitempty"`
	Title   string `json:"Title"`
	Order   int    `json:"Order"`
}

type taskEntity struct {
	aztables.Entity
	ETagRaw     string `json:"odata.etag,omitempty"`
	ColumnID    string `json:"ColumnId"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Order       int    `json:"Order"`
	AssignedTo  string `json:"AssignedTo"`
	Tags        string `json:"Tags"`
	DueDate     string `json:"DueDate"`
	CreatedBy   string `json:"CreatedBy"`
}

type tagEntity struct {
	aztables.Entity
	Title string `json:"Title"`
	Color string `json:"Color"`
}

// Table columns hold scalars only, so string slices travel as JSON text.
func encodeList(values []string) string {
	if len(values) == 0 {
		return ""
	}
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeList(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

func boardToEntity(b domain.Board) boardEntity {
	return boardEntity{
		Entity:       aztables.Entity{PartitionKey: boardPartition, RowKey: b.ID},
		Name:         b.Name,
		Description:  b.Description,
		DepartmentID: b.DepartmentID,
		CreatedBy:    b.CreatedBy,
		Members:      encodeList(b.Members),
	}
}

func boardFromEntity(ent boardEntity) domain.Board {
	return domain.Board{
		ID:           ent.RowKey,
		Name:         ent.Name,
		Description:  ent.Description,
		DepartmentID: ent.DepartmentID,
		CreatedBy:    ent.CreatedBy,
		Members:      decodeList(ent.Members),
		ETag:         ent.ETagRaw,
	}
}

func taskToEntity(boardID string, t domain.Task) taskEntity {
	due := ""
	if t.DueDate != nil {
		due = t.DueDate.UTC().Format(time.RFC3339Nano)
	}
	return taskEntity{
		Entity:      aztables.Entity{PartitionKey: boardID, RowKey: t.ID},
		ColumnID:    t.ColumnID,
		Title:       t.Title,
		Description: t.Description,
		Order:       t.Order,
		AssignedTo:  encodeList(t.AssignedTo),
		Tags:        encodeList(t.Tags),
		DueDate:     due,
		CreatedBy:   t.CreatedBy,
	}
}

func taskFromEntity(ent taskEntity) domain.Task {
	t := domain.Task{
		ID:          ent.RowKey,
		ColumnID:    ent.ColumnID,
		Title:       ent.Title,
		Description: ent.Description,
		Order:       ent.Order,
		AssignedTo:  decodeList(ent.AssignedTo),
		Tags:        decodeList(ent.Tags),
		CreatedBy:   ent.CreatedBy,
		ETag:        ent.ETagRaw,
	}
	if ent.DueDate != "" {
		if due, err := time.Parse(time.RFC3339Nano, ent.DueDate); err == nil {
			t.DueDate = &due
		}
	}
	return t
}

func (s *TableStore) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	resp, err := s.boards.GetEntity(ctx, boardPartition, boardID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent boardEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	board := boardFromEntity(ent)
	return &board, nil
}

func (s *TableStore) ListBoards(ctx context.Context) ([]domain.Board, error) {
	filter := "PartitionKey eq '" + boardPartition + "'"
	pager := s.boards.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	boards := []domain.Board{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent boardEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			boards = append(boards, boardFromEntity(ent))
		}
	}
	return boards, nil
}

func (s *TableStore) InsertBoard(ctx context.Context, b domain.Board) error {
	payload, err := json.Marshal(boardToEntity(b))
	if err != nil {
		return err
	}
	_, err = s.boards.AddEntity(ctx, payload, nil)
	return err
}

// UpdateBoard merges the changed fields into the stored entity.
func (s *TableStore) UpdateBoard(ctx context.Context, boardID string, upd domain.BoardUpdate) error {
	ent := struct {
		aztables.Entity
		Name         *string `json:"Name,omitempty"`
		Description  *string `json:"Description,omitempty"`
		DepartmentID *string `json:"DepartmentId,omitempty"`
	}{
		Entity:       aztables.Entity{PartitionKey: boardPartition, RowKey: boardID},
		Name:         upd.Name,
		Description:  upd.Description,
		DepartmentID: upd.DepartmentID,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.boards.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if isNotFound(err) {
		return domain.NotFoundError{Kind: "board", ID: boardID}
	}
	return err
}

// DeleteBoard removes the board row with every column and task under it.
func (s *TableStore) DeleteBoard(ctx context.Context, boardID string) error {
	tasks, err := s.ListTasks(ctx, boardID)
	if err != nil {
		return err
	}
	writes := make([]domain.TaskWrite, len(tasks))
	for i, t := range tasks {
		writes[i] = domain.TaskWrite{Op: domain.WriteDelete, Task: t}
	}
	for len(writes) > 0 {
		chunk := writes
		if len(chunk) > transactionMaxActions {
			chunk = chunk[:transactionMaxActions]
		}
		if err := s.ApplyTaskWrites(ctx, boardID, chunk); err != nil {
			return err
		}
		writes = writes[len(chunk):]
	}

	columns, err := s.ListColumns(ctx, boardID)
	if err != nil {
		return err
	}
	for _, col := range columns {
		if err := s.DeleteColumn(ctx, boardID, col.ID); err != nil {
			return err
		}
	}

	if _, err := s.boards.DeleteEntity(ctx, boardPartition, boardID, nil); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *TableStore) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	filter := "PartitionKey eq " + odataString(boardID)
	pager := s.columns.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	columns := []domain.Column{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent columnEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			columns = append(columns, domain.Column{
				ID:      ent.RowKey,
				BoardID: ent.PartitionKey,
				Title:   ent.Title,
				Order:   ent.Order,
				ETag:    ent.ETagRaw,
			})
		}
	}
	return columns, nil
}

func (s *TableStore) GetColumn(ctx context.Context, boardID, columnID string) (*domain.Column, error) {
	resp, err := s.columns.GetEntity(ctx, boardID, columnID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent columnEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	return &domain.Column{
		ID:      ent.RowKey,
		BoardID: ent.PartitionKey,
		Title:   ent.Title,
		Order:   ent.Order,
		ETag:    ent.ETagRaw,
	}, nil
}

func (s *TableStore) InsertColumn(ctx context.Context, col domain.Column) error {
	ent := columnEntity{
		Entity: aztables.Entity{PartitionKey: col.BoardID, RowKey: col.ID},
		Title:  col.Title,
		Order:  col.Order,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.columns.AddEntity(ctx, payload, nil)
	return err
}

// UpdateColumnOrders rewrites the order of the listed columns in one
// transaction so lane compaction is all-or-nothing.
func (s *TableStore) UpdateColumnOrders(ctx context.Context, boardID string, orders map[string]int) error {
	if len(orders) == 0 {
		return nil
	}
	actions := make([]aztables.TransactionAction, 0, len(orders))
	for columnID, order := range orders {
		ent := struct {
			aztables.Entity
			Order int `json:"Order"`
		}{
			Entity: aztables.Entity{PartitionKey: boardID, RowKey: columnID},
			Order:  order,
		}
		payload, err := json.Marshal(ent)
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     payload,
		})
	}
	_, err := s.columns.SubmitTransaction(ctx, actions, nil)
	if isPreconditionFailed(err) {
		return domain.ErrConcurrencyConflict
	}
	return err
}

func (s *TableStore) UpdateColumnTitle(ctx context.Context, boardID, columnID, title string) error {
	ent := struct {
		aztables.Entity
		Title string `json:"Title"`
	}{
		Entity: aztables.Entity{PartitionKey: boardID, RowKey: columnID},
		Title:  title,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.columns.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge})
	return err
}

func (s *TableStore) DeleteColumn(ctx context.Context, boardID, columnID string) error {
	if _, err := s.columns.DeleteEntity(ctx, boardID, columnID, nil); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *TableStore) ListTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	filter := "PartitionKey eq " + odataString(boardID)
	pager := s.tasks.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, taskFromEntity(ent))
		}
	}
	return tasks, nil
}

func (s *TableStore) GetTask(ctx context.Context, boardID, taskID string) (*domain.Task, error) {
	resp, err := s.tasks.GetEntity(ctx, boardID, taskID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	task := taskFromEntity(ent)
	return &task, nil
}

// ApplyTaskWrites submits the batch as a single table transaction. Every
// task in a batch shares the board partition, which is what makes the
// transaction legal; a stale ETag on any write fails the whole batch.
func (s *TableStore) ApplyTaskWrites(ctx context.Context, boardID string, writes []domain.TaskWrite) error {
	if len(writes) == 0 {
		return nil
	}
	if len(writes) > transactionMaxActions {
		return fmt.Errorf("task write batch of %d exceeds the transaction limit", len(writes))
	}
	actions := make([]aztables.TransactionAction, 0, len(writes))
	for _, w := range writes {
		payload, err := json.Marshal(taskToEntity(boardID, w.Task))
		if err != nil {
			return err
		}
		action := aztables.TransactionAction{Entity: payload}
		switch w.Op {
		case domain.WriteUpsert:
			action.ActionType = aztables.TransactionTypeInsertReplace
		case domain.WriteUpdate:
			action.ActionType = aztables.TransactionTypeUpdateReplace
			action.IfMatch = ifMatch(w.ETag)
		case domain.WriteDelete:
			action.ActionType = aztables.TransactionTypeDelete
			action.IfMatch = ifMatch(w.ETag)
		default:
			return fmt.Errorf("unknown task write op %d", w.Op)
		}
		actions = append(actions, action)
	}
	_, err := s.tasks.SubmitTransaction(ctx, actions, nil)
	if isPreconditionFailed(err) {
		return domain.ErrConcurrencyConflict
	}
	return err
}

func ifMatch(etag string) *azcore.ETag {
	if etag == "" {
		any := azcore.ETagAny
		return &any
	}
	et := azcore.ETag(etag)
	return &et
}

func (s *TableStore) ListTags(ctx context.Context) ([]domain.Tag, error) {
	filter := "PartitionKey eq '" + tagPartition + "'"
	pager := s.tags.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tags := []domain.Tag{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent tagEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			tags = append(tags, domain.Tag{ID: ent.RowKey, Title: ent.Title, Color: ent.Color})
		}
	}
	return tags, nil
}

func (s *TableStore) InsertTag(ctx context.Context, tag domain.Tag) error {
	ent := tagEntity{
		Entity: aztables.Entity{PartitionKey: tagPartition, RowKey: tag.ID},
		Title:  tag.Title,
		Color:  tag.Color,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.tags.AddEntity(ctx, payload, nil)
	return err
}
