package prompts

// Gemini response-schema types (OpenAPI subset accepted by generationConfig.responseSchema).
const (
	TypeObject  = "OBJECT"
	TypeArray   = "ARRAY"
	TypeString  = "STRING"
	TypeNumber  = "NUMBER"
	TypeInteger = "INTEGER"
	TypeBoolean = "BOOLEAN"
)

// Schema is the machine-checkable shape attached to a generation request.
// The same value is sent to the backend and used by the parser to check required fields.
type Schema struct {
	Type             string             `json:"type"`
	Description      string             `json:"description,omitempty"`
	Properties       map[string]*Schema `json:"properties,omitempty"`
	Items            *Schema            `json:"items,omitempty"`
	Required         []string           `json:"required,omitempty"`
	PropertyOrdering []string           `json:"propertyOrdering,omitempty"`
	Minimum          *float64           `json:"minimum,omitempty"`
	Maximum          *float64           `json:"maximum,omitempty"`
}

func str(desc string) *Schema {
	return &Schema{Type: TypeString, Description: desc}
}

func strArray(desc string) *Schema {
	return &Schema{Type: TypeArray, Items: &Schema{Type: TypeString, Description: desc}}
}

func bounded(typ, desc string, lo, hi *float64) *Schema {
	return &Schema{Type: typ, Description: desc, Minimum: lo, Maximum: hi}
}

func float(v float64) *float64 { return &v }

// TreatmentSchema describes models.Treatment.
func TreatmentSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"method":              str("Biện pháp xử lý cụ thể (ví dụ: phun thuốc trừ sâu, cải tạo đất, tỉa lá). Bắt buộc điền, sử dụng '" + NoInformation + "' nếu không áp dụng."),
			"recommendedProducts": strArray("Tên thuốc trừ sâu hoặc phân bón phù hợp (ví dụ: Actara, NPK 20-20-15). Trả về mảng rỗng [] nếu không có sản phẩm."),
			"applicationTiming":   str("Thời điểm áp dụng biện pháp (ví dụ: sáng sớm, sau mưa, trước khi ra hoa). Bắt buộc điền, sử dụng '" + NoInformation + "' nếu không có thông tin."),
			"dosage":              str("Liều lượng sử dụng (ví dụ: 10ml thuốc/lít nước, 50g phân bón/cây). Bắt buộc điền, sử dụng '" + NoInformation + "' nếu không có thông tin."),
			"safetyNotes":         str("Lưu ý an toàn khi sử dụng thuốc hoặc phân bón (ví dụ: mang khẩu trang, tránh phun gần nguồn nước). Bắt buộc điền, sử dụng '" + NoInformation + "' nếu không áp dụng."),
		},
		Required:         []string{"method", "recommendedProducts", "applicationTiming", "dosage", "safetyNotes"},
		PropertyOrdering: []string{"method", "recommendedProducts", "applicationTiming", "dosage", "safetyNotes"},
	}
}

// CandidateSchema describes models.PestOrDisease.
func CandidateSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"name":        str("Tên sâu bệnh hoặc bệnh lý cây trồng (ví dụ: sâu đục thân, bệnh đốm lá). Bắt buộc điền."),
			"cause":       str("Nguyên nhân gây ra sâu bệnh hoặc bệnh lý (ví dụ: nấm, vi khuẩn, côn trùng, thiếu dinh dưỡng). Bắt buộc điền, sử dụng '" + NoInformation + "' nếu không có thông tin."),
			"impact":      str("Hậu quả của sâu bệnh hoặc bệnh lý đối với cây trồng (ví dụ: giảm năng suất, cây chết). Bắt buộc điền, sử dụng '" + NoInformation + "' nếu không có thông tin."),
			"treatment":   TreatmentSchema(),
			"probability": bounded(TypeNumber, "Xác suất (0 đến 1) đây là nguyên nhân thực sự. Tổng xác suất của tất cả các mục bằng 1.", float(0), float(1)),
		},
		Required:         []string{"name", "cause", "impact", "treatment", "probability"},
		PropertyOrdering: []string{"name", "cause", "impact", "treatment", "probability"},
	}
}

// DiagnosisSchema describes models.DiagnosisResult.
func DiagnosisSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"cropType":    str("Tên cây trồng được mô tả (ví dụ: lúa, ngô, cà chua). Bắt buộc điền."),
			"cropSymptom": str("Mô tả dấu hiệu bất thường của cây trồng (ví dụ: lá vàng, đốm nâu, héo rũ, côn trùng xuất hiện). Bắt buộc điền."),
			"possiblePestsOrDiseases": {
				Type:        TypeArray,
				Description: "Danh sách sâu bệnh có thể xảy ra, sắp xếp theo xác suất giảm dần.",
				Items:       CandidateSchema(),
			},
			"additionalInfo": str("Thông tin bổ sung về phòng ngừa sâu bệnh, điều kiện môi trường ảnh hưởng (như độ ẩm, nhiệt độ), hoặc mẹo canh tác để giảm nguy cơ tái phát. Bắt buộc điền, sử dụng '" + NoInformation + "' nếu không có dữ liệu."),
		},
		Required:         []string{"cropType", "cropSymptom", "possiblePestsOrDiseases", "additionalInfo"},
		PropertyOrdering: []string{"cropType", "cropSymptom", "possiblePestsOrDiseases", "additionalInfo"},
	}
}

// StepSchema describes models.ImplementationStep.
func StepSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"day":         bounded(TypeInteger, "Số thứ tự ngày, bắt đầu từ 1 và tăng liên tục không bỏ sót.", float(1), nil),
			"date":        str("Ngày thực hiện theo định dạng YYYY-MM-DD. Bước ngày 1 trùng với ngày bắt đầu."),
			"title":       str("Tiêu đề ngắn của bước."),
			"description": str("Mô tả chi tiết công việc trong ngày."),
			"tasks":       strArray("Công việc cụ thể cần làm."),
			"materials":   strArray("Vật tư, thuốc, dụng cụ cần chuẩn bị."),
			"notes":       str("Ghi chú thêm (không bắt buộc)."),
			"isUrgent":    {Type: TypeBoolean, Description: "true nếu bước cần làm gấp."},
		},
		Required:         []string{"day", "date", "title", "description", "tasks", "materials"},
		PropertyOrdering: []string{"day", "date", "title", "description", "tasks", "materials", "notes", "isUrgent"},
	}
}

// PlanSchema describes models.ImplementationPlan.
func PlanSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"cropType":      str("Tên cây trồng."),
			"pestName":      str("Tên sâu bệnh hoặc bệnh lý cần xử lý."),
			"planStartDate": str("Ngày bắt đầu kế hoạch, định dạng YYYY-MM-DD."),
			"planEndDate":   str("Ngày kết thúc kế hoạch, định dạng YYYY-MM-DD."),
			"totalDuration": bounded(TypeInteger, "Tổng số ngày của kế hoạch.", float(1), nil),
			"steps": {
				Type:        TypeArray,
				Description: "Các bước theo ngày, sắp xếp tăng dần theo day.",
				Items:       StepSchema(),
			},
			"generalNotes":      str("Lưu ý chung cho toàn bộ kế hoạch. Sử dụng '" + NoInformation + "' nếu không có."),
			"successIndicators": strArray("Dấu hiệu cho thấy việc xử lý thành công."),
		},
		Required:         []string{"cropType", "pestName", "planStartDate", "planEndDate", "totalDuration", "steps", "generalNotes", "successIndicators"},
		PropertyOrdering: []string{"cropType", "pestName", "planStartDate", "planEndDate", "totalDuration", "steps", "generalNotes", "successIndicators"},
	}
}
