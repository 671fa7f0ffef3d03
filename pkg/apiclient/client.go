// Package apiclient - клиент HTTP API сервера посещаемости.
// Камерой владеет процесс сервера, поэтому CLI добавляет студентов
// и отмечает посещаемость через этот клиент.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"face-attendance/internal/models"
)

// Client для взаимодействия с сервером посещаемости
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создает новый клиент. Таймаут должен покрывать работу воркера.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError - ответ сервера с ошибкой
type APIError struct {
	Status  int
	Kind    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("сервер вернул %d: %s", e.Status, e.Message)
	if e.Kind != "" {
		msg += " (" + e.Kind + ")"
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// Enroll добавляет студента (сервер снимает лицо с камеры)
func (c *Client) Enroll(ctx context.Context, req models.EnrollRequest) (*models.EnrollResponse, error) {
	var resp models.EnrollResponse
	if err := c.do(ctx, http.MethodPost, "/api/students", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TakeAttendance запускает распознавание и возвращает отметку
func (c *Client) TakeAttendance(ctx context.Context) (*models.AttendanceRecord, error) {
	var resp models.AttendanceResponse
	if err := c.do(ctx, http.MethodPost, "/api/attendance/take", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Record, nil
}

// Attendance выгружает отметки с фильтрами (date в формате YYYY-MM-DD)
func (c *Client) Attendance(ctx context.Context, date, studentName string) ([]models.AttendanceRecord, error) {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	if studentName != "" {
		q.Set("studentName", studentName)
	}
	path := "/api/attendance"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Records []models.AttendanceRecord `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// HealthCheck проверяет доступность сервера
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("сервер недоступен: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("сервер вернул статус %d", resp.StatusCode)
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка HTTP запроса: %w", err)
	}
	defer resp.Body.Close()

	// Проверяем статус код
	if resp.StatusCode >= http.StatusBadRequest {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var apiErr models.ErrorResponse
		if json.Unmarshal(bodyBytes, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(bodyBytes))
		}
		return &APIError{
			Status:  resp.StatusCode,
			Kind:    apiErr.Kind,
			Message: apiErr.Error,
			Details: apiErr.Details,
		}
	}

	// Парсим ответ
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ошибка парсинга ответа: %w", err)
	}
	return nil
}
