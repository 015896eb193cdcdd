package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"standards-archive/models"
)

func TestNewConvertTask(t *testing.T) {
	payload := ConvertPayload{
		DocumentID:  "abnt_nbr_5410",
		WorkingFile: "/storage/working/abnt_nbr_5410_123.pdf",
		Meta: models.DocumentMeta{
			Title:          "Electrical installations",
			StandardNumber: "NBR 5410",
			Organization:   "ABNT",
			Year:           2004,
		},
		Fallback: true,
	}

	task, err := NewConvertTask(payload, 330*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TaskConvertDocument, task.Type())

	var decoded ConvertPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, payload, decoded)
}
