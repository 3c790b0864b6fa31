package server

import (
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/smallbiznis/payrail/internal/gateway/domain"
)

const maxNotificationBody = 1 << 20

// HandleIPN receives asynchronous server notifications from the hosted
// gateway. The reply is always 200 with an empty body; nothing about the
// order or the processing outcome leaks back to the caller.
func (s *Server) HandleIPN(c *gin.Context) {
	if !s.callbackLimiter.Allow(c.Request.Context(), c.Param("gateway_id"), c.ClientIP()) {
		s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), "gateway_ipn", "rate_limited")
		c.Status(http.StatusOK)
		return
	}
	s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), "gateway_ipn")

	n, err := s.buildNotification(c, gatewaydomain.NotificationKindIPN)
	if err != nil {
		c.Status(http.StatusOK)
		return
	}

	result, err := s.gw.Hosted().HandleNotification(c.Request.Context(), n)
	if err == nil && result != nil {
		s.obsMetrics.RecordNotification(c.Request.Context(), s.cfg.Gateway.ID, string(result.Disposition))
	}

	c.Status(http.StatusOK)
}

// HandleRedirectBack receives the customer returning from the hosted pay
// page. The notification runs through the same state machine as an IPN
// and the customer is sent to the matching storefront page.
func (s *Server) HandleRedirectBack(c *gin.Context) {
	n, err := s.buildNotification(c, gatewaydomain.NotificationKindRedirect)
	if err != nil {
		c.Redirect(http.StatusFound, s.cfg.Gateway.HomeURL)
		return
	}

	result, err := s.gw.Hosted().HandleNotification(c.Request.Context(), n)
	if err != nil || result == nil {
		c.Redirect(http.StatusFound, s.cfg.Gateway.HomeURL)
		return
	}
	s.obsMetrics.RecordNotification(c.Request.Context(), s.cfg.Gateway.ID, string(result.Disposition))

	target := result.RedirectURL
	if target == "" {
		target = s.cfg.Gateway.HomeURL
	}
	c.Redirect(http.StatusFound, target)
}

func (s *Server) buildNotification(c *gin.Context, kind gatewaydomain.NotificationKind) (*gatewaydomain.Notification, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBody))
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	for key, vals := range c.Request.URL.Query() {
		for _, v := range vals {
			values.Add(key, v)
		}
	}
	if len(body) > 0 {
		if parsed, err := url.ParseQuery(string(body)); err == nil {
			for key, vals := range parsed {
				for _, v := range vals {
					values.Add(key, v)
				}
			}
		}
	}

	return &gatewaydomain.Notification{
		Kind:    kind,
		Values:  values,
		Body:    body,
		Headers: c.Request.Header,
	}, nil
}
