package admission

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// User facing registration messages
const (
	MsgUserCreated = "User created!"
	MsgEmailInUse  = "Email already in use!"
)

// DefaultPhoneRegion is the region used to parse phone numbers that
// carry no country prefix
var DefaultPhoneRegion = "US"

type RegisterUserMessage struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Password   string `json:"password"`
	UseHashid  bool
	OnResponse func(*RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate will run validation rules
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&e.Phone, validation.By(ValidatePhoneNumber(DefaultPhoneRegion))),
		validation.Field(&e.Password, validation.Required, validation.Length(10, 100)),
	)
}

// RegisterUserResponse reports the outcome of a registration attempt.
// Message is safe to surface to the user as is.
type RegisterUserResponse struct {
	UserID  string `json:"user_id,omitempty"`
	Created bool   `json:"created"`
	Message string `json:"message"`
}

type RegisterUserHandler struct {
	repo     RepositoryManager
	mailer   Mailer
	logger   Logger
	activity ActivitySink
}

func NewRegisterUserHandler(repo RepositoryManager) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		mailer:   noopMailer{},
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (h *RegisterUserHandler) WithMailer(m Mailer) *RegisterUserHandler {
	h.mailer = normalizeMailer(m)
	return h
}

func (h *RegisterUserHandler) WithLogger(l Logger) *RegisterUserHandler {
	h.logger = l
	return h
}

func (h *RegisterUserHandler) WithActivitySink(s ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(s)
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	user := &User{}
	created := false

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.Name = event.Name
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, created, err = h.repo.Users().CreateIfAbsentTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	// insert lost the race or the email was taken, same outcome either way
	if !created {
		if event.OnResponse != nil {
			event.OnResponse(&RegisterUserResponse{Created: false, Message: MsgEmailInUse})
		}
		return ErrDuplicateEmail
	}

	if err := h.mailer.SendVerificationEmail(ctx, user.Email, user.ID.String()); err != nil {
		h.logger.Error("failed to dispatch verification email", "error", err)
	}

	h.recordRegistration(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(&RegisterUserResponse{
			UserID:  user.ID.String(),
			Created: true,
			Message: MsgUserCreated,
		})
	}

	return nil
}

func (h *RegisterUserHandler) recordRegistration(ctx context.Context, user *User) {
	err := h.activity.Record(ctx, ActivityEvent{
		EventType:  ActivityEventUserRegistered,
		Actor:      ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:     user.ID.String(),
		OccurredAt: time.Now(),
	})
	if err != nil {
		h.logger.Warn("failed to record registration event", "error", err)
	}
}

// ValidatePhoneNumber builds a rule that accepts empty values and
// otherwise requires a number that parses as valid for the region
func ValidatePhoneNumber(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}

		num, err := phonenumbers.Parse(s, region)
		if err != nil {
			return err
		}

		if !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number")
		}

		return nil
	}
}
