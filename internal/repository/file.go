package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/gobytedrop/internal/domain/model"
)

// fileColumns — список столбцов таблицы files_meta для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `id, filename, mimetype, size, downloads, status, created_at`

// ListParams — параметры листинга файлов.
type ListParams struct {
	// Search — фильтр по подстроке имени файла (case-insensitive, ILIKE).
	// Пустая строка — фильтр не применяется.
	Search string
	// Limit — количество результатов (0 = без ограничения)
	Limit int
	// Offset — смещение
	Offset int
}

// FileRepository — интерфейс доступа к записям files_meta.
type FileRepository interface {
	// Create вставляет новую запись со статусом pending и downloads = 0.
	// created_at проставляется сервером БД; значение возвращается в record.
	Create(ctx context.Context, record *model.FileRecord) error
	// MarkComplete переводит pending-запись в complete и фиксирует
	// фактический размер сохранённого blob'а.
	MarkComplete(ctx context.Context, fileID string, size int64) error
	// GetByID возвращает запись по UUID (любого статуса) или ErrNotFound.
	GetByID(ctx context.Context, fileID string) (*model.FileRecord, error)
	// List возвращает complete-записи, ORDER BY created_at DESC.
	List(ctx context.Context, params ListParams) ([]*model.FileRecord, error)
	// IncrementDownloads атомарно увеличивает счётчик скачиваний на 1
	// и возвращает новое значение. Conditional increment на стороне БД —
	// конкурентные скачивания не теряют обновления.
	IncrementDownloads(ctx context.Context, fileID string) (int64, error)
	// ListStalePending возвращает pending-записи старше olderThan
	// (брошенные загрузки — кандидаты на сверку).
	ListStalePending(ctx context.Context, olderThan time.Time) ([]*model.FileRecord, error)
	// Delete удаляет запись (используется только сверкой и откатом загрузки).
	Delete(ctx context.Context, fileID string) error
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// Create вставляет запись со статусом pending.
// Это первый шаг write-path: строка метаданных до записи blob'а.
func (r *fileRepo) Create(ctx context.Context, record *model.FileRecord) error {
	query := `
		INSERT INTO files_meta (id, filename, mimetype, size, downloads, status)
		VALUES ($1, $2, $3, $4, 0, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		record.ID, record.Filename, record.Mimetype, record.Size, string(model.StatusPending),
	).Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания записи файла: %w", err)
	}

	record.Status = model.StatusPending
	record.Downloads = 0
	return nil
}

// MarkComplete завершает write-path: pending → complete + фактический размер.
func (r *fileRepo) MarkComplete(ctx context.Context, fileID string, size int64) error {
	query := `
		UPDATE files_meta
		SET status = $1, size = $2
		WHERE id = $3 AND status = $4`

	tag, err := r.db.Exec(ctx, query,
		string(model.StatusComplete), size, fileID, string(model.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("ошибка завершения записи файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает запись по UUID или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, fileID string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files_meta WHERE id = $1`, fileColumns)

	record, err := scanFileRecord(r.db.QueryRow(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи файла: %w", err)
	}
	return record, nil
}

// List возвращает complete-записи, новые — первыми.
func (r *fileRepo) List(ctx context.Context, params ListParams) ([]*model.FileRecord, error) {
	query, args := buildListQuery(params)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка листинга файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		record, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи файла: %w", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	return result, nil
}

// IncrementDownloads — атомарный инкремент счётчика на стороне БД.
// Read-modify-write в приложении здесь недопустим: конкурентные
// скачивания одного файла теряли бы обновления.
func (r *fileRepo) IncrementDownloads(ctx context.Context, fileID string) (int64, error) {
	query := `
		UPDATE files_meta
		SET downloads = downloads + 1
		WHERE id = $1 AND status = $2
		RETURNING downloads`

	var downloads int64
	err := r.db.QueryRow(ctx, query, fileID, string(model.StatusComplete)).Scan(&downloads)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка инкремента счётчика скачиваний: %w", err)
	}
	return downloads, nil
}

// ListStalePending возвращает брошенные pending-записи (created_at < olderThan).
func (r *fileRepo) ListStalePending(ctx context.Context, olderThan time.Time) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM files_meta WHERE status = $1 AND created_at < $2 ORDER BY created_at`,
		fileColumns,
	)

	rows, err := r.db.Query(ctx, query, string(model.StatusPending), olderThan)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки pending-записей: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		record, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования pending-записи: %w", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации pending-записей: %w", err)
	}

	return result, nil
}

// Delete удаляет запись по UUID.
func (r *fileRepo) Delete(ctx context.Context, fileID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files_meta WHERE id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanFileRecord сканирует одну строку files_meta в модель.
func scanFileRecord(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	var status string
	if err := row.Scan(
		&f.ID, &f.Filename, &f.Mimetype, &f.Size, &f.Downloads, &status, &f.CreatedAt,
	); err != nil {
		return nil, err
	}
	f.Status = model.FileStatus(status)
	return f, nil
}

// likeEscaper экранирует метасимволы шаблона LIKE/ILIKE в пользовательской
// строке поиска: '%', '_' и '\' должны означать сами себя, а не wildcard.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildListQuery строит SELECT для листинга: только complete-записи,
// опциональный ILIKE-фильтр по имени файла, ORDER BY created_at DESC.
func buildListQuery(params ListParams) (string, []any) {
	var sb strings.Builder
	args := []any{string(model.StatusComplete)}

	sb.WriteString(fmt.Sprintf(`SELECT %s FROM files_meta WHERE status = $1`, fileColumns))

	if params.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(params.Search)+"%")
		sb.WriteString(fmt.Sprintf(" AND filename ILIKE $%d", len(args)))
	}

	sb.WriteString(" ORDER BY created_at DESC")

	if params.Limit > 0 {
		args = append(args, params.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	return sb.String(), args
}
