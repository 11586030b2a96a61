package boundary

import (
	"unsafe"

	"catalogflow/models"
)

func unsafeData(d []models.Data) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(d))
}
