package usecases

import (
	"fmt"

	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
)

// ConvertToChatMessages turns UI chat turns into structured messages, one per turn,
// in the same order. Content is copied verbatim. A turn with an unrecognized role
// fails the whole conversion.
func ConvertToChatMessages(turns []entities.ChatTurn) ([]entities.ChatMessage, error) {
	messages := make([]entities.ChatMessage, 0, len(turns))
	for i, turn := range turns {
		role, err := entities.ParseRole(turn.Role)
		if err != nil {
			return nil, newError(ErrorConfiguration, fmt.Sprintf("turn %d has role %q", i, turn.Role), err)
		}
		messages = append(messages, entities.ChatMessage{
			Role:    role,
			Content: turn.Content,
		})
	}
	return messages, nil
}
