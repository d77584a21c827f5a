package prompts

import (
	"fmt"
	"strings"

	"pest-diagnosis-service/models"
)

const (
	// NoInformation is the sentinel placed in a required field the backend has no data for.
	NoInformation = "Không có thông tin"

	// InvalidImageMessage is the exact reply requested from the backend when an image
	// does not show the stated crop. It contains InvalidImageMarker.
	InvalidImageMessage = "Hình ảnh được cung cấp không hợp lệ"

	// InvalidImageMarker is the substring ("invalid") the parser looks for by default.
	InvalidImageMarker = "không hợp lệ"

	// DateLayout is the calendar date format used by plans (YYYY-MM-DD).
	DateLayout = "2006-01-02"
)

// Kind identifies which of the three generation requests a prompt belongs to.
type Kind string

const (
	KindTextDiagnosis      Kind = "text_diagnosis"
	KindImageDiagnosis     Kind = "image_diagnosis"
	KindImplementationPlan Kind = "implementation_plan"
)

// Prompt is the (text, schema) pair sent to the generation backend.
// Schema is nil when a plain-text answer is expected.
type Prompt struct {
	Kind   Kind
	Text   string
	Schema *Schema
}

const textDiagnosisTemplate = `Dựa trên mô tả dấu hiệu bất thường của cây trồng '%s' trên cây '%s', đề xuất danh sách các loại sâu bệnh và bệnh lý cây trồng có thể xảy ra.
Yêu cầu:
- Mỗi sâu bệnh hoặc bệnh lý phải bao gồm đầy đủ: tên, nguyên nhân, hậu quả, biện pháp xử lý, loại thuốc trừ sâu hoặc phân bón phù hợp, thời điểm áp dụng, liều lượng, lưu ý an toàn và xác suất.
- Điền đầy đủ tất cả các thuộc tính trong schema (cropType, cropSymptom, possiblePestsOrDiseases, additionalInfo và các thuộc tính con name, cause, impact, treatment, method, recommendedProducts, applicationTiming, dosage, safetyNotes, probability). Không được bỏ qua bất kỳ thuộc tính nào, kể cả khi thông tin rỗng: dùng '%s' cho chuỗi và mảng rỗng [] cho danh sách.
- Sắp xếp possiblePestsOrDiseases theo xác suất giảm dần.
- Xác suất là số từ 0 đến 1 và tổng xác suất của tất cả các mục phải bằng 1 (chỉ một nguyên nhân là đúng).
- Sử dụng các từ khóa như 'sâu bệnh', 'bệnh lý cây trồng', 'thuốc trừ sâu', 'phân bón', 'dấu hiệu bất thường', 'nguyên nhân', 'hậu quả'.
- Trong additionalInfo, cung cấp biện pháp phòng ngừa, điều kiện môi trường liên quan hoặc mẹo canh tác.`

const imageDiagnosisTemplate = `Bạn nhận được một hình ảnh được cho là của cây '%s'.
Quan sát kỹ hình ảnh và mô tả bằng tiếng Việt các dấu hiệu bất thường nhìn thấy trên cây (màu lá, đốm, vết thối, héo, côn trùng, trứng, mạng tơ...), vị trí và mức độ lan rộng. Chỉ trả về đoạn mô tả triệu chứng, không chẩn đoán, không dùng markdown.
Nếu hình ảnh không phải là cây '%s', không phải cây trồng, quá mờ hoặc không thể phân tích, chỉ trả lời chính xác câu: "%s"`

const implementationPlanTemplate = `Lập kế hoạch triển khai xử lý '%s' trên cây '%s', bắt đầu từ ngày %s.
Biện pháp xử lý đã đề xuất:
- Phương pháp: %s
- Sản phẩm khuyến nghị: %s
- Thời điểm áp dụng: %s
- Liều lượng: %s
- Lưu ý an toàn: %s
Yêu cầu:
- Chia kế hoạch thành các bước theo ngày, day bắt đầu từ 1 và tăng liên tục không bỏ sót; bước day 1 có date là %s, bước day n có date là ngày bắt đầu cộng (n-1) ngày.
- Bao gồm đủ các giai đoạn: chuẩn bị, thực hiện xử lý, theo dõi, đánh giá kết quả.
- Mỗi bước có title, description, tasks, materials; thêm notes và đánh dấu isUrgent cho việc cần làm gấp.
- Ngày theo định dạng YYYY-MM-DD. planStartDate là %s, planEndDate là ngày của bước cuối cùng, totalDuration là tổng số ngày.
- Điền đầy đủ mọi thuộc tính bắt buộc, dùng '%s' khi không có thông tin.
- successIndicators liệt kê các dấu hiệu cho thấy việc xử lý thành công.`

// BuildTextDiagnosisPrompt asks for candidate pests/diseases for a symptom description.
func BuildTextDiagnosisPrompt(symptoms, cropType string) Prompt {
	return Prompt{
		Kind:   KindTextDiagnosis,
		Text:   fmt.Sprintf(textDiagnosisTemplate, symptoms, cropType, NoInformation),
		Schema: DiagnosisSchema(),
	}
}

// BuildImageDiagnosisPrompt asks for a free-text symptom description of an attached image,
// or InvalidImageMessage when the image does not show the crop.
func BuildImageDiagnosisPrompt(cropType string) Prompt {
	return Prompt{
		Kind: KindImageDiagnosis,
		Text: fmt.Sprintf(imageDiagnosisTemplate, cropType, cropType, InvalidImageMessage),
	}
}

// BuildImplementationPlanPrompt asks for a day-numbered plan starting at currentDate.
func BuildImplementationPlanPrompt(pestName, cropType string, treatment models.Treatment, currentDate string) Prompt {
	products := NoInformation
	if len(treatment.RecommendedProducts) > 0 {
		products = strings.Join(treatment.RecommendedProducts, ", ")
	}
	return Prompt{
		Kind: KindImplementationPlan,
		Text: fmt.Sprintf(implementationPlanTemplate,
			pestName, cropType, currentDate,
			orNoInfo(treatment.Method),
			products,
			orNoInfo(treatment.ApplicationTiming),
			orNoInfo(treatment.Dosage),
			orNoInfo(treatment.SafetyNotes),
			currentDate, currentDate, NoInformation,
		),
		Schema: PlanSchema(),
	}
}

func orNoInfo(s string) string {
	if strings.TrimSpace(s) == "" {
		return NoInformation
	}
	return s
}
