package bbdc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
)

const (
	loginPath      = "/auth/login"
	courseListPath = "/account/listAccountCourseType"
)

type loginRequest struct {
	UserID   string `json:"userId"`
	UserPass string `json:"userPass"`
}

type loginData struct {
	TokenContent string `json:"tokenContent"`
}

type courseListData struct {
	ActiveCourseList []activeCourse `json:"activeCourseList"`
}

type activeCourse struct {
	CourseType string `json:"courseType"`
	AuthToken  string `json:"authToken"`
}

// Login exchanges the user's credentials for a bearer token and then for the
// course token of courseType, returning a ready Session.
func (c *Client) Login(ctx context.Context, user *booking.User, courseType string) (*Session, error) {
	ctx, span := c.tracer.Start(ctx, "bbdc.Login", trace.WithAttributes(
		attribute.String("bbdc.user", user.Username),
		attribute.String("bbdc.course_type", courseType),
	))
	defer span.End()

	rc := c.newHTTP()
	bearer, err := c.bearerToken(ctx, rc, user)
	if err != nil {
		return nil, fail(span, err)
	}
	courseToken, err := c.courseToken(ctx, rc, bearer, courseType)
	if err != nil {
		return nil, fail(span, fmt.Errorf("%w for %s", err, user.Username))
	}

	api, err := c.API(booking.SlotTypePractical)
	if err != nil {
		return nil, fail(span, err)
	}

	sessionHTTP := c.newHTTP().
		SetHeader("Authorization", bearer).
		SetHeader("JSESSIONID", courseToken)

	c.logger.Info("session created", zap.String("user", user.Username), zap.String("course_type", courseType))
	return &Session{
		user:       user,
		courseType: courseType,
		http:       sessionHTTP,
		api:        api,
	}, nil
}

// NewSession implements booking.SessionFactory.
func (c *Client) NewSession(ctx context.Context, user *booking.User, courseType string) (booking.Session, error) {
	s, err := c.Login(ctx, user, courseType)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Client) bearerToken(ctx context.Context, rc *resty.Client, user *booking.User) (string, error) {
	resp, err := rc.R().
		SetContext(ctx).
		SetBody(loginRequest{UserID: user.Username, UserPass: user.Password}).
		Post(loginPath)
	if err != nil {
		return "", fmt.Errorf("login %s: %w", user.Username, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("%w for %s: status %d", ErrLoginFailed, user.Username, resp.StatusCode())
	}
	body, err := decode[loginData](resp)
	if err != nil {
		return "", fmt.Errorf("login %s: %w", user.Username, err)
	}
	if body.Data.TokenContent == "" {
		return "", fmt.Errorf("%w for %s: empty token", ErrLoginFailed, user.Username)
	}
	return body.Data.TokenContent, nil
}

func (c *Client) courseToken(ctx context.Context, rc *resty.Client, bearer, courseType string) (string, error) {
	resp, err := rc.R().
		SetContext(ctx).
		SetHeader("Authorization", bearer).
		Post(courseListPath)
	if err != nil {
		return "", fmt.Errorf("list course types: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("list course types: %w: status %d", ErrUnexpectedResponse, resp.StatusCode())
	}
	body, err := decode[courseListData](resp)
	if err != nil {
		return "", fmt.Errorf("list course types: %w", err)
	}
	for _, course := range body.Data.ActiveCourseList {
		if course.CourseType == courseType {
			return course.AuthToken, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrCourseTypeNotFound, courseType)
}
