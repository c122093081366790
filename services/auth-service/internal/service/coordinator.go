package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"SiteAuthPlatform/pkg/config"
	apperrors "SiteAuthPlatform/pkg/errors"
	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/pkg/metrics"
	"SiteAuthPlatform/pkg/ratelimit"
	"SiteAuthPlatform/pkg/validation"
	"SiteAuthPlatform/services/auth-service/internal/audit"
	"SiteAuthPlatform/services/auth-service/internal/directory"
	"SiteAuthPlatform/services/auth-service/internal/domain"
	"SiteAuthPlatform/services/auth-service/internal/pkg/password"
	"SiteAuthPlatform/services/auth-service/internal/pkg/totp"
	"SiteAuthPlatform/services/auth-service/internal/repository"
)

// maxIdentifierLength ограничивает логин и идентификаторы сессии и транзакции
const maxIdentifierLength = 255

// dummyAccount используется для сравнения пароля, когда аккаунт не найден,
// чтобы время ответа не выдавало существование логина
var dummyAccount = domain.Account{
	ID:           "00000000-0000-0000-0000-000000000000",
	PasswordHash: strings.Repeat("0", 64),
}

// Outcome итог попытки входа
type Outcome int

const (
	// OutcomeRejected вход отклонен, Reason содержит причину
	OutcomeRejected Outcome = iota
	// OutcomeSuccess вход выполнен, запись о сессии сохранена
	OutcomeSuccess
	// OutcomeIgnored повторная отправка уже обработанного запроса.
	// Вызывающий может записать ее в лог, но не показывать пользователю.
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "rejected"
	}
}

// LoginRequest попытка входа от внешнего вызывающего
type LoginRequest struct {
	TenantID         string
	Login            string
	Password         string
	SecondFactorCode string
	CallerIP         string
	SessionID        string
	TransactionID    string
}

// LoginResult результат попытки входа
type LoginResult struct {
	Outcome Outcome
	// Reason внутренний код причины отказа, наружу не показывается
	Reason  apperrors.ErrorCode
	Account *domain.Account
	Groups  []string
	Backend directory.BackendKind
	// PasswordExpiresInDays заполняется, когда срок пароля скоро истекает
	PasswordExpiresInDays *int
	// Err исходная ошибка инфраструктуры для логов вызывающего
	Err error
}

// UserMessageKey возвращает ключ локализованного сообщения для пользователя.
// Разные причины отказа дают одно и то же сообщение.
func (r *LoginResult) UserMessageKey() string {
	switch r.Outcome {
	case OutcomeSuccess:
		if r.PasswordExpiresInDays != nil {
			return "message-password-expires-in-days"
		}
		return "message-login-success"
	default:
		return apperrors.New(r.Reason, "").MessageKey()
	}
}

// UserMessage возвращает текст сообщения на указанном языке
func (r *LoginResult) UserMessage(locale string) string {
	if r.Outcome == OutcomeSuccess && r.PasswordExpiresInDays != nil {
		return apperrors.Localize(locale, r.UserMessageKey(), *r.PasswordExpiresInDays)
	}
	return apperrors.Localize(locale, r.UserMessageKey())
}

// LogoutRequest выход пользователя
type LogoutRequest struct {
	TenantID  string
	AccountID string
	Login     string
	CallerIP  string
}

// Options настройки процесса входа
type Options struct {
	// CountSecondFactorFailures учитывает неверные коды второго фактора в счетчике блокировки
	CountSecondFactorFailures bool
	PasswordExpiryWarning     time.Duration
	// RateLimitPerMinute ограничение попыток с одного адреса, 0 отключает
	RateLimitPerMinute int
}

// OptionsFromConfig строит Options из секции login конфигурации
func OptionsFromConfig(cfg config.LoginConfig) Options {
	return Options{
		CountSecondFactorFailures: cfg.CountSecondFactorFailures,
		PasswordExpiryWarning:     time.Duration(cfg.PasswordExpiryWarningDays) * 24 * time.Hour,
		RateLimitPerMinute:        cfg.RateLimitPerMinute,
	}
}

// AuditRecorder принимает события аудита без возврата ошибки
type AuditRecorder interface {
	Record(ctx context.Context, event audit.Event)
}

// Dependencies зависимости Coordinator.
// RateLimiter, Metrics и Audit необязательны.
type Dependencies struct {
	Store        repository.Store
	Hasher       password.Hasher
	TOTP         *totp.Validator
	Secrets      directory.SecretDecrypter
	Selector     *directory.Selector
	Directory    *directory.Verifier
	Synchronizer *directory.GroupSynchronizer
	Replay       *ReplayGuard
	Lockout      *LockoutPolicy
	RateLimiter  ratelimit.RateLimiter
	Audit        AuditRecorder
	Metrics      *metrics.Metrics
	Logger       logger.Logger
}

// Coordinator выполняет вход: проверка повтора, блокировки, выбор способа
// проверки, проверка учетных данных, второй фактор и запись сессии.
// Все изменения одной попытки выполняются в одной транзакции.
type Coordinator struct {
	store     repository.Store
	hasher    password.Hasher
	totp      *totp.Validator
	secrets   directory.SecretDecrypter
	selector  *directory.Selector
	verifiers map[directory.BackendKind]credentialVerifier
	replay    *ReplayGuard
	lockout   *LockoutPolicy
	validator *validation.Validator
	limiter   ratelimit.RateLimiter
	audit     AuditRecorder
	metrics   *metrics.Metrics
	logger    logger.Logger
	options   Options
	now       func() time.Time
}

// NewCoordinator создает Coordinator
func NewCoordinator(deps Dependencies, options Options) *Coordinator {
	return &Coordinator{
		store:    deps.Store,
		hasher:   deps.Hasher,
		totp:     deps.TOTP,
		secrets:  deps.Secrets,
		selector: deps.Selector,
		verifiers: map[directory.BackendKind]credentialVerifier{
			directory.BackendLocal:     localVerifier{hasher: deps.Hasher},
			directory.BackendDirectory: directoryVerifier{verifier: deps.Directory, synchronizer: deps.Synchronizer},
		},
		replay:    deps.Replay,
		lockout:   deps.Lockout,
		validator: validation.NewValidator(),
		limiter:   deps.RateLimiter,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		options:   options,
		now:       time.Now,
	}
}

// Login выполняет попытку входа. Ошибки учетных данных, каталога и
// инфраструктуры возвращаются в LoginResult, паники и ошибки наружу не выходят.
func (c *Coordinator) Login(ctx context.Context, req LoginRequest) *LoginResult {
	start := c.now()
	ctx, span := c.metrics.StartSpan(ctx, "auth.login",
		attribute.String("tenant.id", req.TenantID),
		attribute.String("client.address", req.CallerIP))
	defer span.End()
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = logger.WithTraceID(ctx, sc.TraceID().String())
	}

	log := c.logger.With(
		logger.CtxField(ctx),
		logger.String("tenant_id", req.TenantID),
		logger.String("login", domain.NormalizeLogin(req.Login)),
		logger.String("caller_ip", req.CallerIP),
	)

	result := c.login(ctx, req, log)

	span.SetAttributes(
		attribute.String("auth.outcome", result.Outcome.String()),
		attribute.String("auth.backend", result.Backend.String()))
	if result.Outcome == OutcomeRejected {
		span.SetStatus(codes.Error, string(result.Reason))
	}
	c.metrics.ObserveLogin(result.Outcome.String(), string(result.Reason), result.Backend.String(), c.now().Sub(start))
	c.record(ctx, req, result, log)
	return result
}

func (c *Coordinator) login(ctx context.Context, req LoginRequest, log logger.Logger) *LoginResult {
	if err := c.validate(req); err != nil {
		log.Warn("Login request rejected", logger.Error(err))
		return reject(apperrors.ErrValidation)
	}

	if c.limiter != nil && c.options.RateLimitPerMinute > 0 {
		exceeded, err := c.limiter.CheckRateLimit(ctx, "login:"+req.TenantID+":"+req.CallerIP, c.options.RateLimitPerMinute, time.Minute)
		if err != nil {
			log.Warn("Login rate limit check failed, allowing attempt", logger.Error(err))
		} else if exceeded {
			log.Warn("Login rate limit exceeded", logger.Int("limit", c.options.RateLimitPerMinute))
			return reject(apperrors.ErrTooManyRequests)
		}
	}

	key := c.replay.Key(req.SessionID, req.TransactionID)

	var result *LoginResult
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		result, err = c.attempt(ctx, tx, req, key, log)
		return err
	})

	switch {
	case err == nil:
		return result
	case apperrors.IsDuplicateLogin(err):
		log.Info("Duplicate login submission ignored", logger.String("reason", string(apperrors.CodeOf(err))))
		return &LoginResult{Outcome: OutcomeIgnored, Reason: apperrors.CodeOf(err)}
	default:
		code := apperrors.CodeOf(err)
		if code != apperrors.ErrEncryptionKeyMissing && code != apperrors.ErrDecryptionFailed {
			code = apperrors.ErrInternal
		}
		log.Error("Login attempt failed, transaction rolled back", logger.Error(err))
		return &LoginResult{Outcome: OutcomeRejected, Reason: code, Err: err}
	}
}

func (c *Coordinator) validate(req LoginRequest) error {
	err := c.validator.ValidateRequiredFields(
		validation.Field{Name: "tenant_id", Value: req.TenantID},
		validation.Field{Name: "login", Value: req.Login},
		validation.Field{Name: "session_id", Value: req.SessionID},
		validation.Field{Name: "transaction_id", Value: req.TransactionID},
	)
	if err != nil {
		return err
	}
	for _, field := range []validation.Field{
		{Name: "login", Value: req.Login},
		{Name: "session_id", Value: req.SessionID},
		{Name: "transaction_id", Value: req.TransactionID},
	} {
		if err := c.validator.ValidateStringLength(field.Value, field.Name, 1, maxIdentifierLength); err != nil {
			return err
		}
	}
	return nil
}

// attempt выполняется внутри транзакции. Возвращенная ошибка откатывает
// транзакцию, отказ по учетным данным возвращается результатом и фиксирует
// изменение счетчика блокировки.
func (c *Coordinator) attempt(ctx context.Context, tx repository.Tx, req LoginRequest, key ReplayKey, log logger.Logger) (*LoginResult, error) {
	if err := c.replay.Admit(ctx, tx.Sessions(), key); err != nil {
		return nil, err
	}

	tenant, err := tx.Tenants().FindByID(ctx, req.TenantID)
	if apperrors.HasCode(err, apperrors.ErrNotFound) {
		c.hasher.Verify(&dummyAccount, req.Password)
		log.Warn("Login failed, unknown tenant")
		return reject(apperrors.ErrInvalidCredentials), nil
	}
	if err != nil {
		return nil, err
	}

	account, err := tx.Accounts().FindByLogin(ctx, tenant.ID, req.Login)
	if apperrors.HasCode(err, apperrors.ErrNotFound) {
		c.hasher.Verify(&dummyAccount, req.Password)
		log.Warn("Login failed, account not registered")
		return reject(apperrors.ErrInvalidCredentials), nil
	}
	if err != nil {
		return nil, err
	}
	log = log.With(logger.String("account_id", account.ID))

	if err := c.lockout.Precheck(account); err != nil {
		c.hasher.Verify(&dummyAccount, req.Password)
		log.Warn("Login failed, account locked out")
		return rejectAccount(apperrors.CodeOf(err), account, directory.BackendLocal), nil
	}

	var backend *domain.DirectoryBackend
	if tenant.AllowDirectoryLogin {
		backend, err = c.selector.Select(ctx, tx.Directories(), tenant.ID, req.CallerIP)
		if err != nil {
			return nil, err
		}
	}
	kind := directory.KindOf(backend)

	err = c.verifiers[kind].verify(ctx, tx, credentials{
		tenant:   tenant,
		account:  account,
		backend:  backend,
		password: req.Password,
	}, log)
	if err != nil {
		code := apperrors.CodeOf(err)
		if !isCredentialFailure(code) {
			return nil, err
		}
		log.Warn("Login failed, credentials rejected",
			logger.String("backend", kind.String()),
			logger.String("reason", string(code)))
		if _, err := c.lockout.OnFailure(ctx, tx.Accounts(), account, tenant); err != nil {
			return nil, err
		}
		return rejectAccount(code, account, kind), nil
	}

	if err := c.checkSecondFactor(ctx, tx, tenant, account, req.SecondFactorCode); err != nil {
		code := apperrors.CodeOf(err)
		if code != apperrors.ErrSecondFactorInvalid && code != apperrors.ErrSecondFactorRequired {
			return nil, err
		}
		log.Warn("Login failed, second factor", logger.String("reason", string(code)))
		if code == apperrors.ErrSecondFactorInvalid && c.options.CountSecondFactorFailures {
			if _, err := c.lockout.OnFailure(ctx, tx.Accounts(), account, tenant); err != nil {
				return nil, err
			}
		}
		return rejectAccount(code, account, kind), nil
	}

	if err := c.lockout.OnSuccess(ctx, tx.Accounts(), account); err != nil {
		return nil, err
	}
	if err := c.replay.Record(ctx, tx.Sessions(), key, account.ID); err != nil {
		return nil, err
	}

	groups, err := tx.Groups().ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{Outcome: OutcomeSuccess, Account: account, Backend: kind}
	for _, group := range groups {
		result.Groups = append(result.Groups, group.Name)
	}
	result.PasswordExpiresInDays = c.passwordExpiresInDays(account)

	log.Info("User login", logger.String("backend", kind.String()))
	return result, nil
}

// checkSecondFactor проверяет код TOTP, если у аккаунта есть устройство.
// Устройства разных типов дают ErrSecondFactorRequired.
func (c *Coordinator) checkSecondFactor(ctx context.Context, tx repository.Tx, tenant *domain.Tenant, account *domain.Account, code string) error {
	devices, err := tx.Devices().ListByAccount(ctx, account.ID)
	if err != nil {
		return err
	}

	var encrypted []string
	current := domain.CurrentDeviceKind(devices)
	switch {
	case current.Ambiguous:
		return apperrors.New(apperrors.ErrSecondFactorRequired, "account has devices of different kinds")
	case current.Kind == domain.DeviceKindU2F:
		return apperrors.New(apperrors.ErrSecondFactorRequired, "universal second factor must be completed by the caller")
	case current.Kind == domain.DeviceKindTOTP:
		for _, device := range devices {
			encrypted = append(encrypted, device.EncryptedSecret)
		}
	case account.SecondFactorSecret != "":
		encrypted = append(encrypted, account.SecondFactorSecret)
	case !tenant.AllowSecondFactorBypass:
		return apperrors.New(apperrors.ErrSecondFactorRequired, "tenant requires a second factor device")
	default:
		return nil
	}

	if strings.TrimSpace(code) == "" {
		return apperrors.New(apperrors.ErrSecondFactorRequired, "second factor code required")
	}

	now := c.now()
	for _, value := range encrypted {
		secret, err := c.secrets.DecryptSecret(value)
		if err != nil {
			return err
		}
		if c.totp.CheckCode(secret, code, now) {
			return nil
		}
	}
	return apperrors.New(apperrors.ErrSecondFactorInvalid, "second factor code mismatch")
}

// passwordExpiresInDays возвращает число полных дней до истечения пароля,
// если оно попадает в окно предупреждения
func (c *Coordinator) passwordExpiresInDays(account *domain.Account) *int {
	if account.PasswordExpiresAt == nil || c.options.PasswordExpiryWarning <= 0 {
		return nil
	}
	now := c.now()
	if !now.Add(c.options.PasswordExpiryWarning).After(*account.PasswordExpiresAt) {
		return nil
	}
	days := int(account.PasswordExpiresAt.Sub(now) / (24 * time.Hour))
	return &days
}

// Logout записывает событие выхода. Запись о сессии сохраняется.
func (c *Coordinator) Logout(ctx context.Context, req LogoutRequest) {
	c.logger.Info("User logout",
		logger.CtxField(ctx),
		logger.String("tenant_id", req.TenantID),
		logger.String("account_id", req.AccountID),
		logger.String("caller_ip", req.CallerIP))

	if c.audit == nil {
		return
	}
	c.audit.Record(ctx, audit.Event{
		TenantID:     req.TenantID,
		Type:         audit.EventLogout,
		ActorAddress: req.CallerIP,
		SubjectID:    req.AccountID,
		SubjectLabel: domain.NormalizeLogin(req.Login),
	})
}

// ResetLockout административно снимает блокировку аккаунта
func (c *Coordinator) ResetLockout(ctx context.Context, tenantID, login string) (*domain.Account, error) {
	var account *domain.Account
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		account, err = tx.Accounts().FindByLogin(ctx, tenantID, login)
		if err != nil {
			return err
		}
		return c.lockout.Reset(ctx, tx.Accounts(), account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// AddDevice сохраняет TOTP устройство аккаунта. Секрет должен быть
// зашифрован текущим системным ключом. Аккаунт с U2F устройствами не
// получает TOTP, иначе тип устройств станет неоднозначным.
func (c *Coordinator) AddDevice(ctx context.Context, tenantID, login, name, encryptedSecret string) (*domain.AuthenticationDevice, error) {
	if _, err := c.secrets.DecryptSecret(encryptedSecret); err != nil {
		return nil, err
	}

	device := &domain.AuthenticationDevice{
		Kind:            domain.DeviceKindTOTP,
		Name:            name,
		EncryptedSecret: encryptedSecret,
	}
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		account, err := tx.Accounts().FindByLogin(ctx, tenantID, login)
		if err != nil {
			return err
		}
		devices, err := tx.Devices().ListByAccount(ctx, account.ID)
		if err != nil {
			return err
		}
		for _, existing := range devices {
			if existing.Kind != domain.DeviceKindTOTP {
				return apperrors.New(apperrors.ErrConflict, "account has devices of another kind").
					WithDetails(string(existing.Kind))
			}
		}
		device.AccountID = account.ID
		return tx.Devices().Create(ctx, device)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Authentication device added",
		logger.CtxField(ctx),
		logger.String("tenant_id", tenantID),
		logger.String("account_id", device.AccountID),
		logger.String("device_id", device.ID))
	return device, nil
}

func (c *Coordinator) record(ctx context.Context, req LoginRequest, result *LoginResult, log logger.Logger) {
	if c.audit == nil || result.Outcome == OutcomeIgnored {
		return
	}

	event := audit.Event{
		TenantID:     req.TenantID,
		Type:         audit.EventLoginFailure,
		ActorAddress: req.CallerIP,
		SubjectLabel: domain.NormalizeLogin(req.Login),
		Reason:       string(result.Reason),
	}
	if result.Outcome == OutcomeSuccess {
		event.Type = audit.EventLoginSuccess
	}
	if result.Account != nil {
		event.SubjectID = result.Account.ID
	}
	c.audit.Record(ctx, event)
}

func isCredentialFailure(code apperrors.ErrorCode) bool {
	switch code {
	case apperrors.ErrInvalidCredentials,
		apperrors.ErrDirectoryUserNotFound,
		apperrors.ErrNotInRequiredGroup,
		apperrors.ErrDirectoryUnavailable:
		return true
	default:
		return false
	}
}

func reject(code apperrors.ErrorCode) *LoginResult {
	return &LoginResult{Outcome: OutcomeRejected, Reason: code}
}

func rejectAccount(code apperrors.ErrorCode, account *domain.Account, kind directory.BackendKind) *LoginResult {
	return &LoginResult{Outcome: OutcomeRejected, Reason: code, Account: account, Backend: kind}
}
