package agent

import (
	"regexp"
	"strings"

	"github.com/easeaico/storefront-cs/internal/types"
)

var addressKeywords = []string{
	"地址", "在哪", "门店", "店在", "位置", "怎么走", "怎么去", "实体店", "线下店", "导航",
}

var purchaseKeywords = []string{
	"怎么买", "购买", "预约", "下单", "想要", "定制", "到店", "试戴", "买",
}

var contactKeywords = []string{
	"微信", "微信号", "联系电话", "电话", "手机号", "qq", "QQ", "二维码", "外链", "邮箱",
	"怎么关注", "如何关注", "关注客服", "联系客服", "怎么联系", "如何联系",
}

// complianceKeywords are contact channels the model must never disclose.
var complianceKeywords = []string{
	"微信", "微信号", "联系电话", "电话", "手机号", "qq", "QQ", "二维码", "外链", "邮箱",
}

var shippingKeywords = []string{"包邮", "快递", "邮寄", "物流", "发货", "寄到"}

var afterSalesKeywords = []string{
	"售后", "清洗", "护理", "保养", "打理", "毛躁", "打结", "掉色", "变形", "修复", "返修",
}

var afterSalesSymptoms = []string{"毛躁", "打结", "掉色", "变形", "掉发", "起球", "发硬", "分叉"}

// Knowledge tags with special handling.
var (
	politeTags         = []string{"礼貌", "结束语"}
	contactAttachTags  = []string{"预约", "邮寄", "快递"}
	appointmentIntent  = "appointment"
	selfLocationMarker = regexp.MustCompile(`我(?:现在|目前|人)?不?在|住在|我住|来自|人在`)
	regionSuffix       = regexp.MustCompile(`(\p{Han}{2,8}(?:省|市|区|县|州|盟|旗))`)
)

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// detectIntent classifies text. Address wins over purchase, purchase over contact.
func detectIntent(text string) types.Intent {
	switch {
	case containsAny(text, addressKeywords):
		return types.IntentAddress
	case containsAny(text, purchaseKeywords):
		return types.IntentPurchase
	case containsAny(text, contactKeywords):
		return types.IntentContact
	}
	return types.IntentGeneral
}

func isAfterSales(text string) bool {
	return containsAny(text, afterSalesKeywords)
}

func hasSymptom(text string) bool {
	return containsAny(text, afterSalesSymptoms)
}

func hasSelfLocation(text string) bool {
	return selfLocationMarker.MatchString(text)
}

// regionFromText extracts an administrative region name such as 齐齐哈尔市.
func regionFromText(text string) string {
	if m := regionSuffix.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func hasAnyTag(item types.KnowledgeItem, tags []string) bool {
	for _, tag := range tags {
		if item.HasTag(tag) {
			return true
		}
	}
	return false
}

func attachesContact(item types.KnowledgeItem) bool {
	return item.Intent == appointmentIntent || hasAnyTag(item, contactAttachTags)
}
