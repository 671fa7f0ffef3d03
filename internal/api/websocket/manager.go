package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message типы сообщений для WebSocket
type MessageType string

const (
	MessageTypeEnrollmentStage  MessageType = "enrollment_stage"
	MessageTypeStudentEnrolled  MessageType = "student_enrolled"
	MessageTypeAttendanceMarked MessageType = "attendance_marked"
	MessageTypeWorkerOutput     MessageType = "worker_output"
	MessageTypeStatsUpdate      MessageType = "stats_update"
)

// Message структура WebSocket сообщения
type Message struct {
	Type    MessageType `json:"type"`
	Topic   string      `json:"topic,omitempty"`
	Payload interface{} `json:"payload"`
}

// Client представляет WebSocket клиента
type Client struct {
	ID    string
	Conn  *websocket.Conn
	Send  chan Message
	Topic string // номер студента, за добавлением которого следит клиент; пусто - все события
}

// Manager управляет WebSocket соединениями
type Manager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	mu         sync.RWMutex
}

// NewManager создает новый WebSocket manager
func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 256),
	}
}

// Run запускает менеджер (должен работать в отдельной горутине)
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			for id, client := range m.clients {
				close(client.Send)
				delete(m.clients, id)
			}
			m.mu.Unlock()
			return

		case client := <-m.register:
			m.mu.Lock()
			m.clients[client.ID] = client
			m.mu.Unlock()
			log.Printf("🔌 WebSocket: клиент %s подключен (топик: %q)", client.ID, client.Topic)

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client.ID]; ok {
				delete(m.clients, client.ID)
				close(client.Send)
				log.Printf("🔌 WebSocket: клиент %s отключен", client.ID)
			}
			m.mu.Unlock()

		case message := <-m.broadcast:
			m.mu.Lock()
			for _, client := range m.clients {
				// Сообщение с топиком получают только подписанные на него и клиенты без топика
				if message.Topic != "" && client.Topic != "" && client.Topic != message.Topic {
					continue
				}

				select {
				case client.Send <- message:
				default:
					// Если канал переполнен - отключаем клиента
					close(client.Send)
					delete(m.clients, client.ID)
				}
			}
			m.mu.Unlock()
		}
	}
}

// RegisterClient регистрирует нового клиента
func (m *Manager) RegisterClient(client *Client) {
	m.register <- client
}

// UnregisterClient отключает клиента
func (m *Manager) UnregisterClient(client *Client) {
	m.unregister <- client
}

// ClientCount - число подключенных клиентов
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Broadcast отправляет сообщение всем клиентам.
// Не блокирует: воркер не должен ждать медленных подписчиков.
func (m *Manager) Broadcast(message Message) {
	select {
	case m.broadcast <- message:
	default:
		log.Printf("⚠️  WebSocket: очередь переполнена, сообщение %s отброшено", message.Type)
	}
}

// BroadcastEnrollmentStage отправляет переход конвейера добавления
func (m *Manager) BroadcastEnrollmentStage(rollNo string, stage interface{}) {
	m.Broadcast(Message{
		Type:    MessageTypeEnrollmentStage,
		Topic:   rollNo,
		Payload: stage,
	})
}

// BroadcastStudentEnrolled сообщает о новом студенте
func (m *Manager) BroadcastStudentEnrolled(rollNo string, student interface{}) {
	m.Broadcast(Message{
		Type:    MessageTypeStudentEnrolled,
		Topic:   rollNo,
		Payload: student,
	})
}

// BroadcastAttendanceMarked сообщает о новой отметке
func (m *Manager) BroadcastAttendanceMarked(record interface{}) {
	m.Broadcast(Message{
		Type:    MessageTypeAttendanceMarked,
		Payload: record,
	})
}

// BroadcastWorkerOutput пересылает строку вывода воркера
func (m *Manager) BroadcastWorkerOutput(mode, line string) {
	m.Broadcast(Message{
		Type: MessageTypeWorkerOutput,
		Payload: map[string]interface{}{
			"mode": mode,
			"line": line,
		},
	})
}

// BroadcastStatsUpdate отправляет обновление статистики
func (m *Manager) BroadcastStatsUpdate(stats interface{}) {
	m.Broadcast(Message{
		Type:    MessageTypeStatsUpdate,
		Payload: stats,
	})
}

// ReadPump читает сообщения от клиента
func (c *Client) ReadPump(manager *Manager) {
	defer func() {
		manager.UnregisterClient(c)
		c.Conn.Close()
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Клиенту писать нечего, входящие только логируем
		log.Printf("Received from client %s: %s", c.ID, string(message))
	}
}

// WritePump отправляет сообщения клиенту
func (c *Client) WritePump() {
	defer func() {
		c.Conn.Close()
	}()

	for message := range c.Send {
		data, err := json.Marshal(message)
		if err != nil {
			log.Printf("Error marshaling message: %v", err)
			continue
		}

		c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
