package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

// DeviceRepository реализация репозитория устройств второго фактора для PostgreSQL
type DeviceRepository struct {
	*BaseRepository
}

// NewDeviceRepository создает новый экземпляр DeviceRepository
func NewDeviceRepository(q querier) repository.DeviceRepository {
	return &DeviceRepository{BaseRepository: NewBaseRepository(q)}
}

// Create сохраняет устройство. EncryptedSecret должен быть уже зашифрован.
func (r *DeviceRepository) Create(ctx context.Context, device *domain.AuthenticationDevice) error {
	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.ModifiedAt = now

	query := `INSERT INTO authentication_devices (id, account_id, kind, name, encrypted_secret, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.q.Exec(ctx, query,
		device.ID,
		device.AccountID,
		string(device.Kind),
		device.Name,
		device.EncryptedSecret,
		device.CreatedAt,
		device.ModifiedAt)
	if err != nil {
		return fmt.Errorf("failed to create authentication device: %w", err)
	}
	return nil
}

// ListByAccount возвращает устройства аккаунта в порядке создания
func (r *DeviceRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.AuthenticationDevice, error) {
	query := `SELECT id, account_id, kind, name, encrypted_secret, created_at, modified_at
		FROM authentication_devices
		WHERE account_id = $1
		ORDER BY created_at, id`

	rows, err := r.q.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list authentication devices: %w", err)
	}
	defer rows.Close()

	var devices []*domain.AuthenticationDevice
	for rows.Next() {
		var (
			device domain.AuthenticationDevice
			kind   string
		)
		if err := rows.Scan(
			&device.ID,
			&device.AccountID,
			&kind,
			&device.Name,
			&device.EncryptedSecret,
			&device.CreatedAt,
			&device.ModifiedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan authentication device: %w", err)
		}
		device.Kind = domain.DeviceKind(kind)
		devices = append(devices, &device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate authentication devices: %w", err)
	}
	return devices, nil
}
